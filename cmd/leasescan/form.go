package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/leasescan/internal/form"
)

// formCmd groups commands that inspect and edit the saved form
var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Show or edit the saved contract form",
}

var formShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every form field",
	Args:  cobra.NoArgs,
	RunE:  runFormShow,
}

var formCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "List required fields that are still empty",
	Long:  `Exit with an error when any required field or the residents list is empty.`,
	Args:  cobra.NoArgs,
	RunE:  runFormCheck,
}

var formSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Set form fields by hand",
	Long: `Set one or more form fields. An empty value clears the field.

Examples:
  leasescan form set tenantRegistration="г. Москва, ул. Тверская, д. 1"
  leasescan form set rentAmount=45000 depositAmount=45000`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFormSet,
}

var formResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the whole form",
	Args:  cobra.NoArgs,
	RunE:  runFormReset,
}

var formResidentCmd = &cobra.Command{
	Use:   "resident",
	Short: "Manage the residents list",
}

var formResidentAddCmd = &cobra.Command{
	Use:   "add name",
	Short: "Add a resident",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormResidentAdd,
}

var formResidentRemoveCmd = &cobra.Command{
	Use:   "remove index",
	Short: "Remove a resident by its number in \"form show\"",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormResidentRemove,
}

func init() {
	rootCmd.AddCommand(formCmd)
	formCmd.AddCommand(formShowCmd, formCheckCmd, formSetCmd, formResetCmd, formResidentCmd)
	formResidentCmd.AddCommand(formResidentAddCmd, formResidentRemoveCmd)

	formResidentAddCmd.Flags().String("birthdate", "", "resident's date of birth")
}

func openForm(cmd *cobra.Command) (*form.Store, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := form.LoadOrCreate(cfg.FormFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open form: %w", err)
	}
	return store, nil
}

func runFormShow(cmd *cobra.Command, args []string) error {
	store, err := openForm(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Form: %s (step %d)\n\n", store.Path(), store.Step())

	values := store.Values()
	for _, k := range form.AllKeys {
		if v, ok := values[k]; ok {
			fmt.Fprintf(out, "  %-22s %s\n", k, v)
		} else {
			fmt.Fprintf(out, "  %-22s ", k)
			dimColor.Fprintln(out, "-")
		}
	}

	fmt.Fprintln(out, "\nResidents:")
	residents := store.Residents()
	if len(residents) == 0 {
		dimColor.Fprintln(out, "  none")
	}
	for i, r := range residents {
		if r.Birthdate != "" {
			fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, r.Name, r.Birthdate)
		} else {
			fmt.Fprintf(out, "  %d. %s\n", i+1, r.Name)
		}
	}
	return nil
}

func runFormCheck(cmd *cobra.Command, args []string) error {
	store, err := openForm(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	missing := store.Missing()
	if len(missing) == 0 {
		success(out, "All required fields are filled")
		return nil
	}

	for _, m := range missing {
		failure(out, "%s is empty", m)
	}
	return fmt.Errorf("%d required field(s) missing", len(missing))
}

func runFormSet(cmd *cobra.Command, args []string) error {
	store, err := openForm(cmd)
	if err != nil {
		return err
	}

	// Validate every argument before touching the form.
	updates := make(map[form.Key]string, len(args))
	order := make([]form.Key, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", arg)
		}
		key, err := form.ParseKey(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		if _, seen := updates[key]; !seen {
			order = append(order, key)
		}
		updates[key] = value
	}

	out := cmd.OutOrStdout()
	for _, key := range order {
		if err := store.Set(key, updates[key]); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
		success(out, "%s updated", key)
	}
	return nil
}

func runFormReset(cmd *cobra.Command, args []string) error {
	store, err := openForm(cmd)
	if err != nil {
		return err
	}

	store.Reset()
	if err := store.Save(); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Form cleared")
	return nil
}

func runFormResidentAdd(cmd *cobra.Command, args []string) error {
	store, err := openForm(cmd)
	if err != nil {
		return err
	}

	birthdate, _ := cmd.Flags().GetString("birthdate")
	if err := store.AddResident(form.Resident{Name: args[0], Birthdate: birthdate}); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Resident added")
	return nil
}

func runFormResidentRemove(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid resident number %q", args[0])
	}

	store, err := openForm(cmd)
	if err != nil {
		return err
	}

	if err := store.RemoveResident(n - 1); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Resident removed")
	return nil
}
