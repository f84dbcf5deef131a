package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/prompt"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/redirect"
)

// shellCmd creates the "shell" subcommand.
func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell driving the dataset tools",
		RunE:  runShell,
	}
}

func runShell(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("iwb interactive shell")
	fmt.Println("Type 'help' for available commands, 'exit' to quit.")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("iwb> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		name, rest := parts[0], parts[1:]

		switch name {
		case "help", "?":
			printShellHelp()
		case "exit", "quit", "q":
			return nil
		case "profile":
			shellProfile(a, rest)
		case "add":
			p := prompt.New(os.Stdin, os.Stdout)
			if err := addRedirect(a, p, argAt(rest, 0), argAt(rest, 1), ""); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "refresh":
			shellRefresh(a, rest)
		case "compare":
			if len(rest) == 0 {
				fmt.Println("Usage: compare <url>...")
				continue
			}
			if err := compareWikis(a, rest); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "language":
			if len(rest) != 1 {
				fmt.Println("Usage: language <code>")
				continue
			}
			if err := a.store.AddLanguage(strings.ToLower(rest[0])); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "config":
			printConfig(a.cfg)
		case "clear":
			fmt.Print("\033[H\033[2J")
		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", name)
		}
	}
}

func printShellHelp() {
	fmt.Println(`
Available Commands:
  profile <url> [basic]     Profile a wiki and print its metadata
  add [dest] [origin]       Add a redirect entry (prompts for missing inputs)
  refresh [language...]     Re-profile dataset destinations
  compare <url>...          Profile wikis side by side
  language <code>           Bootstrap a new language

  config                    Show current configuration
  clear                     Clear the screen
  help                      Show this help
  exit                      Exit the shell`)
}

func shellProfile(a *app, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: profile <url> [basic]")
		return
	}
	full := !(len(args) > 1 && args[1] == "basic")

	ctx, cancel := a.wikiContext()
	defer cancel()

	meta, err := a.profiler.ProfileWiki(ctx, args[0], full)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := printMetadata(meta); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
}

func shellRefresh(a *app, langs []string) {
	var err error
	if len(langs) == 0 {
		if langs, err = a.store.Languages(); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
	}
	for _, lang := range langs {
		if err := refreshLanguage(a, lang, redirect.RefreshOptions{}); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
	}
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
