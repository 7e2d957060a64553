package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// dateFlag parses a YYYY-MM-DD flag; an empty value returns the zero Date.
func dateFlag(cmd *cobra.Command, name string) (database.Date, error) {
	s := mustGetString(cmd, name)
	if s == "" {
		return database.Date{}, nil
	}
	d, err := database.ParseDate(s)
	if err != nil {
		return database.Date{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

// filterFlags reads the shared --category/--group flags.
func filterFlags(cmd *cobra.Command) (database.IdentityFilter, error) {
	var filter database.IdentityFilter
	if s := mustGetString(cmd, "category"); s != "" {
		category, err := database.ParseCategory(s)
		if err != nil {
			return filter, err
		}
		filter.Category = category
	}
	filter.Group = mustGetString(cmd, "group")
	return filter, nil
}
