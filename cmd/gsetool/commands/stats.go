package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/gse/internal/cliutil"
	"github.com/marmos91/gse/pkg/gse"
)

var statsIn string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a manifest of GSE packets",
	Long: `Parse every packet header in a manifest produced by "gsetool
encap" or "gsetool demo --out" and print counts by QoS and payload type.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsIn, "in", "-", "input manifest file ('-' for stdin)")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	manifest, err := readManifest(statsIn)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	byQoS := map[uint32]int{}
	byType := map[gse.PayloadType]int{}
	padding := 0
	for _, rcd := range manifest.Records {
		if gse.IsPadding(rcd.Payload) {
			padding++
			continue
		}
		hdr, err := gse.ParseHeader(rcd.Payload)
		if err != nil {
			return fmt.Errorf("record %d: %w", rcd.Sequence, err)
		}
		byQoS[rcd.QoS]++
		byType[hdr.PayloadType]++
	}

	table := cliutil.NewKVTable()
	table.Add("run id", manifest.RunID)
	table.Add("total records", fmt.Sprintf("%d", len(manifest.Records)))
	table.Add("padding", fmt.Sprintf("%d", padding))
	for qos, n := range byQoS {
		table.Add(fmt.Sprintf("qos %d packets", qos), fmt.Sprintf("%d", n))
	}
	for pt, n := range byType {
		table.Add(payloadTypeLabel(pt)+" packets", fmt.Sprintf("%d", n))
	}
	cliutil.PrintTable(cmd.OutOrStdout(), table)
	return nil
}

func payloadTypeLabel(pt gse.PayloadType) string {
	switch pt {
	case gse.Complete:
		return "complete"
	case gse.First:
		return "first"
	case gse.Subsequent:
		return "subsequent"
	case gse.Last:
		return "last"
	default:
		return "unknown"
	}
}
