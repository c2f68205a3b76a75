package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/gse/internal/exportfmt"
	"github.com/marmos91/gse/internal/metrics"
	"github.com/marmos91/gse/internal/obslog"
	"github.com/marmos91/gse/pkg/gse"
)

var (
	deencapIn        string
	deencapOut       string
	deencapEnableRec bool
)

var deencapCmd = &cobra.Command{
	Use:   "deencap",
	Short: "Reassemble PDUs from a manifest of GSE packets",
	Long: `Read an exportfmt manifest produced by "gsetool encap" and
reassemble the original PDU(s). Padding records are skipped without a
report, a PDU that fails its CRC check is dropped with a warning, and
reassembly pre-emptions are not reported.`,
	RunE: runDeencap,
}

func init() {
	deencapCmd.Flags().StringVar(&deencapIn, "in", "-", "input manifest file ('-' for stdin)")
	deencapCmd.Flags().StringVar(&deencapOut, "out", "-", "output PDU file ('-' for stdout; only the last reassembled PDU is written)")
	deencapCmd.Flags().BoolVar(&deencapEnableRec, "metrics", false, "record Prometheus metrics for this run")
}

func runDeencap(cmd *cobra.Command, args []string) error {
	manifest, err := readManifest(deencapIn)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	var rec gse.Recorder
	if deencapEnableRec {
		rec = metrics.New(nil)
	}
	d := gse.NewDeencapsulator(
		gse.WithDeencapLogger(obslog.Logger()),
		gse.WithDeencapRecorder(rec),
		gse.WithBBFrameTimeout(Cfg().Encap.BBFrameTimeout),
	)
	defer d.Release()

	var lastPDU []byte
	var reassembled int
	for _, rcd := range manifest.Records {
		if gse.IsPadding(rcd.Payload) {
			continue
		}
		result, err := d.Packet(rcd.Payload)
		if err != nil {
			if errors.Is(err, gse.StatusInvalidCRC) {
				obslog.Warn("dropping PDU with invalid CRC", "qos", rcd.QoS)
				continue
			}
			return fmt.Errorf("record %d: %w", rcd.Sequence, err)
		}
		if result.PDU == nil {
			continue // fragment consumed, reassembly still in progress
		}
		lastPDU = append([]byte(nil), result.PDU.Bytes()...)
		result.PDU.Free()
		reassembled++
	}

	if lastPDU == nil {
		return fmt.Errorf("no PDU fully reassembled from %d records", len(manifest.Records))
	}
	if err := writeBytes(deencapOut, lastPDU); err != nil {
		return err
	}
	obslog.Info("deencap complete", "reassembled", reassembled)
	return nil
}

func readManifest(path string) (*exportfmt.Manifest, error) {
	if path == "-" || path == "" {
		data, err := readAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return exportfmt.Decode(bytesReader(data))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return exportfmt.Decode(f)
}

func writeBytes(path string, data []byte) error {
	if path == "-" || path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
