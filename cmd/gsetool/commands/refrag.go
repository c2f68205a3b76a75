package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/gse/internal/metrics"
	"github.com/marmos91/gse/internal/obslog"
	"github.com/marmos91/gse/pkg/gse"
)

var (
	refragIn        string
	refragOutDir    string
	refragNewLen1   int
	refragQoS       int
	refragHeadOff   int
	refragTrailOff  int
	refragEnableRec bool
)

var refragCmd = &cobra.Command{
	Use:   "refrag",
	Short: "Split one GSE packet into two",
	Long: `Split a single GSE packet (read from a raw file, not a manifest)
into two packets of no more than newLen1 and the remainder, writing each
half to <outdir>/part1.bin and <outdir>/part2.bin.

qos must match the packet's own FragID when it carries one (every
PayloadType but Complete); for a Complete packet qos becomes the FragID
of both resulting fragments.`,
	RunE: runRefrag,
}

func init() {
	refragCmd.Flags().StringVar(&refragIn, "in", "", "input packet file (required)")
	refragCmd.Flags().StringVar(&refragOutDir, "out-dir", ".", "directory to write part1.bin/part2.bin into")
	refragCmd.Flags().IntVar(&refragNewLen1, "new-len1", 0, "maximum length of the first resulting packet (required)")
	refragCmd.Flags().IntVar(&refragQoS, "qos", 0, "QoS / FragID for the resulting fragments")
	refragCmd.Flags().IntVar(&refragHeadOff, "head-off", gse.RefragHeadroom, "head offset reserved on the input packet and on packet2")
	refragCmd.Flags().IntVar(&refragTrailOff, "trail-off", 0, "trail offset reserved on the input packet and on packet2")
	refragCmd.Flags().BoolVar(&refragEnableRec, "metrics", false, "record Prometheus metrics for this run")
	_ = refragCmd.MarkFlagRequired("in")
	_ = refragCmd.MarkFlagRequired("new-len1")
}

func runRefrag(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(refragIn)
	if err != nil {
		return fmt.Errorf("read packet: %w", err)
	}

	hdr, err := gse.ParseHeader(data)
	if err != nil {
		return fmt.Errorf("parse header: %w", err)
	}
	// Reserve head_off ahead of the packet: splitting a Complete packet
	// into First+Last grows the surviving header in place, which needs
	// that headroom (see gse.RefragHeadroom).
	packet, err := gse.CreateWithData(len(data), refragHeadOff, refragTrailOff, data)
	if err != nil {
		return fmt.Errorf("allocate packet fragment: %w", err)
	}

	var rec gse.Recorder
	if refragEnableRec {
		rec = metrics.New(nil)
	}
	r := gse.NewRefragmenter(gse.WithRefragLogger(obslog.Logger()), gse.WithRefragRecorder(rec))
	p1, p2, err := r.Refragment(packet, hdr.LabelType, refragHeadOff, refragTrailOff, refragQoS, refragNewLen1)
	if err != nil {
		return fmt.Errorf("refragment: %w", err)
	}
	defer p1.Free()
	defer p2.Free()

	if err := os.MkdirAll(refragOutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(refragOutDir+"/part1.bin", p1.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write part1: %w", err)
	}
	if err := os.WriteFile(refragOutDir+"/part2.bin", p2.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write part2: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d and %d bytes to %s\n", p1.Length(), p2.Length(), refragOutDir)
	return err
}
