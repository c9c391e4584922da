package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framefish/subsift/internal/compare"
	"github.com/framefish/subsift/internal/config"
	"github.com/framefish/subsift/internal/detect"
	"github.com/framefish/subsift/internal/ocr"
)

func newProbeCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "List the detection, comparison and OCR backends available here",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg

			fmt.Println("detection strategies:")
			for _, s := range detect.Probe() {
				fmt.Printf("  %s\n", s)
			}

			fmt.Println("comparison strategies:")
			for _, s := range compare.Probe() {
				fmt.Printf("  %s\n", s)
			}

			fmt.Println("ocr engines:")
			kinds := ocr.Probe(c.Pipeline().OCR.Settings)
			if len(kinds) == 0 {
				fmt.Println("  none (configure [ocr] command)")
			}
			for _, k := range kinds {
				fmt.Printf("  %s\n", k)
			}
			return nil
		},
	}
}
