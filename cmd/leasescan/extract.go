package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/leasescan/internal/extract"
	"github.com/platinummonkey/leasescan/internal/form"
)

// extractCmd runs field extraction on text that was already recognized
var extractCmd = &cobra.Command{
	Use:   "extract [text-file]",
	Short: "Extract passport fields from recognized text",
	Long: `Run field extraction on raw OCR text read from a file or stdin and print
the values found. Useful with text saved by "leasescan scan --raw-out".

Examples:
  leasescan extract raw.txt
  cat raw.txt | leasescan extract --role landlord`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().String("role", "", "also show the form field each value would fill (tenant, landlord)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	var binding form.Binding
	if roleName, _ := cmd.Flags().GetString("role"); roleName != "" {
		role, err := form.ParseRole(roleName)
		if err != nil {
			return err
		}
		if binding, err = form.BindingFor(role); err != nil {
			return err
		}
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open text file: %w", err)
		}
		defer f.Close()
		in = f
	}

	text, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read text: %w", err)
	}

	fields := extract.Extract(string(text))
	printFields(cmd.OutOrStdout(), fields, binding)
	return nil
}

func printFields(w io.Writer, fields extract.Fields, binding form.Binding) {
	for _, kind := range extract.AllKinds {
		value, ok := fields.Get(kind)
		label := kind.Label()
		if binding != nil {
			label = fmt.Sprintf("%s (%s)", label, binding[kind])
		}
		if !ok {
			fmt.Fprintf(w, "%-40s ", label)
			dimColor.Fprintln(w, "not found")
			continue
		}
		fmt.Fprintf(w, "%-40s %s\n", label, value)
	}
}
