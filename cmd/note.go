package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	pagenote "github.com/emrgen/pagenote"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const daemonPort = "8866"

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "note commands",
}

func init() {
	rootCmd.AddCommand(noteCmd)
	noteCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	noteCmd.AddCommand(addNoteCmd())
	noteCmd.AddCommand(listNotesCmd())
	noteCmd.AddCommand(updateNoteCmd())
	noteCmd.AddCommand(removeNoteCmd())

	rootCmd.AddCommand(pinCmd())
	rootCmd.AddCommand(domainsCmd())
}

func addNoteCmd() *cobra.Command {
	var domain string
	var path string
	var text string

	var required = []string{"domain", "path", "text"}

	command := &cobra.Command{
		Use:     "add",
		Short:   "add a note to a page",
		Example: `pagenote note add -d example.com -p /articles/1 -t "some note"`,
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			client := pagenote.NewClient(daemonPort)
			note, err := client.AddNote(context.Background(), domain, path, text)
			if err != nil {
				logrus.Error(err)
				return
			}

			color.Green("note added: %s", note.ID)
		},
	}

	command.Flags().StringVarP(&domain, "domain", "d", "", "site domain")
	command.Flags().StringVarP(&path, "path", "p", "", "page path")
	command.Flags().StringVarP(&text, "text", "t", "", "note text")

	return command
}

func listNotesCmd() *cobra.Command {
	var domain string
	var path string

	var required = []string{"domain", "path"}

	command := &cobra.Command{
		Use:   "list",
		Short: "list the notes of a page",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			client := pagenote.NewClient(daemonPort)
			page, err := client.PageNotes(context.Background(), domain, path)
			if err != nil {
				logrus.Error(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Text", "Updated"})
			for _, note := range page.Notes {
				table.Append([]string{
					note.ID,
					note.Text,
					time.UnixMilli(note.UpdatedAt).Format(time.RFC3339),
				})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&domain, "domain", "d", "", "site domain")
	command.Flags().StringVarP(&path, "path", "p", "", "page path")

	return command
}

func updateNoteCmd() *cobra.Command {
	var domain string
	var path string
	var noteID string
	var text string

	var required = []string{"domain", "path", "note-id", "text"}

	command := &cobra.Command{
		Use:   "update",
		Short: "rewrite the text of a note",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			client := pagenote.NewClient(daemonPort)
			note, err := client.UpdateNote(context.Background(), domain, path, noteID, text)
			if err != nil {
				logrus.Error(err)
				return
			}

			color.Green("note updated: %s", note.ID)
		},
	}

	command.Flags().StringVarP(&domain, "domain", "d", "", "site domain")
	command.Flags().StringVarP(&path, "path", "p", "", "page path")
	command.Flags().StringVarP(&noteID, "note-id", "n", "", "note id")
	command.Flags().StringVarP(&text, "text", "t", "", "note text")

	return command
}

func removeNoteCmd() *cobra.Command {
	var domain string
	var path string
	var noteID string

	var required = []string{"domain", "path", "note-id"}

	command := &cobra.Command{
		Use:   "rm",
		Short: "delete a note",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			client := pagenote.NewClient(daemonPort)
			if err := client.DeleteNote(context.Background(), domain, path, noteID); err != nil {
				logrus.Error(err)
				return
			}

			color.Green("note deleted: %s", noteID)
		},
	}

	command.Flags().StringVarP(&domain, "domain", "d", "", "site domain")
	command.Flags().StringVarP(&path, "path", "p", "", "page path")
	command.Flags().StringVarP(&noteID, "note-id", "n", "", "note id")

	return command
}

func pinCmd() *cobra.Command {
	var domain string

	var required = []string{"domain"}

	command := &cobra.Command{
		Use:   "pin",
		Short: "toggle the pin of a domain",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			client := pagenote.NewClient(daemonPort)
			pinned, err := client.TogglePin(context.Background(), domain)
			if err != nil {
				logrus.Error(err)
				return
			}

			if pinned {
				color.Green("domain pinned: %s", domain)
			} else {
				color.Yellow("domain unpinned: %s", domain)
			}
		},
	}

	command.Flags().StringVarP(&domain, "domain", "d", "", "site domain")

	return command
}

func domainsCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "domains",
		Short: "list the domains with notes",
		Run: func(cmd *cobra.Command, args []string) {
			client := pagenote.NewClient(daemonPort)
			domains, err := client.Domains(context.Background())
			if err != nil {
				logrus.Error(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Domain", "Pinned", "Pages", "Notes"})
			for _, d := range domains {
				table.Append([]string{
					d.Domain,
					fmt.Sprintf("%t", d.Pinned),
					fmt.Sprintf("%d", d.TotalPages),
					fmt.Sprintf("%d", d.TotalNotes),
				})
			}
			table.Render()
		},
	}

	return command
}

func checkMissingFlags(cmd *cobra.Command, flags []string) bool {
	var missingFlags []string
	var providedFlags []string
	for _, required := range flags {
		if cmd.Flag(required).Changed == false {
			missingFlags = append(missingFlags, required)
		} else {
			value := cmd.Flag(required).Value.String()
			providedFlags = append(providedFlags, fmt.Sprintf("--%s=%s", required, value))
		}
	}

	if len(missingFlags) > 0 {
		var msg string
		for _, f := range missingFlags {
			msg += fmt.Sprintf("--%s ", f)
		}

		color.Red("missing: %s\n", msg)
		if len(providedFlags) > 0 {
			provided := strings.Join(providedFlags, " ")
			color.Yellow("provided: %s\n", provided)
		}
		return true
	}

	return false
}
