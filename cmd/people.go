package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll a person from a face photo",
	Long: `Extract exactly one face from the image and store it as a new identity.
Names must be unique ignoring case and diacritics.

Example:
  face-attendance enroll --name "Asha Rao" --category student --group 5A --image asha.jpg`,
	RunE: runEnroll,
}

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List enrolled identities",
	RunE:  runPeople,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(peopleCmd)

	enrollCmd.Flags().String("name", "", "Display name (required)")
	enrollCmd.Flags().String("category", string(database.CategoryStudent), "Category: student or staff")
	enrollCmd.Flags().String("group", "", "Class name (students only)")
	enrollCmd.Flags().String("image", "", "Path to a JPEG, PNG, WebP or BMP photo (required)")

	peopleCmd.Flags().String("category", "", "Only this category")
	peopleCmd.Flags().String("group", "", "Only this class")
	peopleCmd.Flags().Bool("json", false, "Output as JSON")
}

// PersonOutput is the JSON form of an identity.
type PersonOutput struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Group     string `json:"group,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toPersonOutput(id *database.Identity) PersonOutput {
	return PersonOutput{
		ID:        id.ID,
		Name:      id.DisplayName,
		Category:  string(id.Category),
		Group:     id.Group,
		CreatedAt: id.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func runEnroll(cmd *cobra.Command, args []string) error {
	path := mustGetString(cmd, "image")
	if path == "" {
		return fmt.Errorf("--image is required")
	}
	image, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.CommandTimeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	identity, err := a.service.Enroll(ctx, attendance.EnrollRequest{
		Name:     mustGetString(cmd, "name"),
		Category: mustGetString(cmd, "category"),
		Group:    mustGetString(cmd, "group"),
		Image:    image,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Enrolled %s (id %d, %s", identity.DisplayName, identity.ID, identity.Category)
	if identity.Group != "" {
		fmt.Printf(", %s", identity.Group)
	}
	fmt.Println(")")
	return nil
}

func runPeople(cmd *cobra.Command, args []string) error {
	filter, err := filterFlags(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.CommandTimeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	people, err := a.service.ListPeople(ctx, filter)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		out := make([]PersonOutput, 0, len(people))
		for i := range people {
			out = append(out, toPersonOutput(&people[i]))
		}
		return outputJSON(out)
	}

	if len(people) == 0 {
		fmt.Println("No identities enrolled.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tGROUP")
	for _, p := range people {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.DisplayName, p.Category, p.Group)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d identities\n", len(people))
	return nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
