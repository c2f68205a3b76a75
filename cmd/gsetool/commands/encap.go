package commands

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/gse/internal/exportfmt"
	"github.com/marmos91/gse/internal/metrics"
	"github.com/marmos91/gse/internal/obslog"
	"github.com/marmos91/gse/pkg/gse"
)

var (
	encapIn        string
	encapOut       string
	encapQoS       int
	encapLabelType string
	encapLabelHex  string
	encapProtocol  uint16
	encapPacketLen int
	encapEnableRec bool
)

var encapCmd = &cobra.Command{
	Use:   "encap",
	Short: "Encapsulate a PDU into one or more GSE packets",
	Long: `Read a PDU from a file (or stdin), encapsulate it, and write the
resulting packets as an exportfmt manifest.

Examples:
  gsetool encap --in pdu.bin --out packets.xdr --protocol 0x0800
  gsetool encap --in pdu.bin --out packets.xdr --packet-len 188 --qos 2`,
	RunE: runEncap,
}

func init() {
	encapCmd.Flags().StringVar(&encapIn, "in", "-", "input PDU file ('-' for stdin)")
	encapCmd.Flags().StringVar(&encapOut, "out", "-", "output manifest file ('-' for stdout)")
	encapCmd.Flags().IntVar(&encapQoS, "qos", 0, "QoS queue index")
	encapCmd.Flags().StringVar(&encapLabelType, "label-type", "6byte", "label type (6byte|3byte|none)")
	encapCmd.Flags().StringVar(&encapLabelHex, "label", "0102030405aa", "hex-encoded label bytes (ignored for label-type=none; must not be all-zero or all-ones)")
	encapCmd.Flags().Uint16Var(&encapProtocol, "protocol", 0x0800, "protocol type (EtherType)")
	encapCmd.Flags().IntVar(&encapPacketLen, "packet-len", 0, "desired packet length (0 = maximum)")
	encapCmd.Flags().BoolVar(&encapEnableRec, "metrics", false, "record Prometheus metrics for this run")
}

func runEncap(cmd *cobra.Command, args []string) error {
	pdu, err := readAllInput(encapIn)
	if err != nil {
		return fmt.Errorf("read PDU: %w", err)
	}
	labelType, err := parseLabelType(encapLabelType)
	if err != nil {
		return err
	}
	label, err := parseLabel(encapLabelHex)
	if err != nil {
		return err
	}

	cfg := Cfg()
	qosCount := cfg.Encap.QoSCount
	if encapQoS >= qosCount {
		qosCount = encapQoS + 1
	}

	var rec gse.Recorder
	if encapEnableRec {
		rec = metrics.New(nil)
	}

	e, err := gse.NewEncapsulator(qosCount, cfg.Encap.FIFOCapacity,
		gse.WithLogger(obslog.Logger()), gse.WithRecorder(rec))
	if err != nil {
		return fmt.Errorf("create encapsulator: %w", err)
	}
	defer e.Release()

	if cfg.Encap.ExtensionsOn {
		e.SetExtensionCallback(func(protocolType uint16) ([]byte, uint16, bool, error) {
			return nil, 0, false, nil
		})
	}

	f, err := gse.CreateWithData(len(pdu), 16, 4, pdu)
	if err != nil {
		return fmt.Errorf("allocate PDU fragment: %w", err)
	}
	if err := e.ReceivePDU(f, label, labelType, encapProtocol, encapQoS); err != nil {
		return fmt.Errorf("receive PDU: %w", err)
	}

	manifest := &exportfmt.Manifest{RunID: pduRunID()}
	var seq uint32
	for {
		depth, err := e.FIFODepth(encapQoS)
		if err != nil {
			return err
		}
		if depth == 0 {
			break
		}
		pkt, err := e.GetPacketCopy(encapPacketLen, encapQoS)
		if err != nil {
			return fmt.Errorf("get packet: %w", err)
		}
		manifest.Records = append(manifest.Records, exportfmt.Record{
			Sequence:     seq,
			QoS:          uint32(encapQoS),
			ProtocolType: uint32(encapProtocol),
			Payload:      append([]byte(nil), pkt.Bytes()...),
		})
		pkt.Free()
		seq++
	}

	return writeManifest(encapOut, manifest)
}

func readAllInput(path string) ([]byte, error) {
	if path == "-" || path == "" {
		return readAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// parseLabel decodes a hex-encoded label into the fixed [6]byte ReceivePDU
// expects; only the leading LabelLen(labelType) bytes of it end up
// significant on the wire.
func parseLabel(s string) ([6]byte, error) {
	var out [6]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("decode --label: %w", err)
	}
	if len(raw) > len(out) {
		return out, fmt.Errorf("--label must decode to at most %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func parseLabelType(s string) (gse.LabelType, error) {
	switch s {
	case "6byte":
		return gse.LT6Byte, nil
	case "3byte":
		return gse.LT3Byte, nil
	case "none":
		return gse.LTNone, nil
	default:
		return 0, fmt.Errorf("unknown label type %q (want 6byte|3byte|none)", s)
	}
}

func writeManifest(path string, m *exportfmt.Manifest) error {
	if path == "-" || path == "" {
		return exportfmt.Encode(os.Stdout, m)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return exportfmt.Encode(f, m)
}
