package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/pronounguard/internal/db"
	"github.com/hpungsan/pronounguard/internal/engine"
	"github.com/hpungsan/pronounguard/internal/errors"
	"github.com/hpungsan/pronounguard/internal/pronoun"
	"github.com/hpungsan/pronounguard/internal/transfer"
	"github.com/hpungsan/pronounguard/internal/web"
)

// maxStdinBytes bounds message text read from stdin.
const maxStdinBytes = 1 << 20

// exitBlocked is the exit code of a check that found a blocking mismatch.
const exitBlocked = 2

// newCLIApp creates the CLI application with all commands. d may be nil
// when only help or version output is needed.
func newCLIApp(d *deps) *cli.App {
	app := &cli.App{
		Name:    "pronounguard",
		Usage:   "Detect and correct pronoun mismatches in messages",
		Version: Version,
		Commands: []*cli.Command{
			messageCmd(d, "analyze", "Report pronouns, mentions and a rewrite preview (reads text from stdin)"),
			messageCmd(d, "correct", "Rewrite mismatched pronouns (reads text from stdin)"),
			messageCmd(d, "check", "Exit 2 if the message has a blocking mismatch (reads text from stdin)"),
			resolveCmd(d),
			normalizeCmd(),
			statsCmd(d),
			directoryCmd(d),
			serveCmd(d),
		},
		// "alice=Alice,Ali" keeps its commas.
		DisableSliceFlagSeparator: true,
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func messageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Message text (default: read from stdin)"},
		&cli.StringSliceFlag{Name: "person", Aliases: []string{"p"}, Usage: "Person as id or id=Name,Other Name (repeatable)"},
		&cli.StringSliceFlag{Name: "label", Aliases: []string{"l"}, Usage: "Pronoun override as id=label (repeatable)"},
		&cli.StringFlag{Name: "context", Aliases: []string{"c"}, Value: "cli", Usage: "Context key for duplicate tracking"},
	}
}

// messageCmd creates analyze, correct and check, which share their input.
func messageCmd(d *deps, name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: messageFlags(),
		Action: func(c *cli.Context) error {
			req, err := messageRequest(c)
			if err != nil {
				return outputError(err)
			}

			ctx := c.Context
			switch name {
			case "analyze":
				out, err := d.engine.Analyze(ctx, req)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(out)
			case "correct":
				out, err := d.engine.Correct(ctx, req)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(out)
			default:
				out, err := d.engine.Check(ctx, req)
				if err != nil {
					return outputError(err)
				}
				if err := outputJSON(out); err != nil {
					return err
				}
				if !out.Proceed {
					return cli.Exit(out.Summary, exitBlocked)
				}
				return nil
			}
		},
	}
}

// messageRequest builds an engine request from flags and stdin.
func messageRequest(c *cli.Context) (engine.Request, error) {
	text := c.String("text")
	if text == "" {
		if !stdinHasData() {
			return engine.Request{}, errors.NewInvalidRequest("text must be given with --text or piped via stdin")
		}
		s, err := readStdin(maxStdinBytes)
		if err != nil {
			return engine.Request{}, errors.NewInvalidRequest(err.Error())
		}
		text = s
	}

	people := make([]engine.Person, 0, len(c.StringSlice("person")))
	for _, raw := range c.StringSlice("person") {
		p, err := parsePerson(raw)
		if err != nil {
			return engine.Request{}, err
		}
		people = append(people, p)
	}

	labels, err := parseLabels(c.StringSlice("label"))
	if err != nil {
		return engine.Request{}, err
	}

	return engine.Request{
		Context: c.String("context"),
		Text:    text,
		People:  people,
		Labels:  labels,
	}, nil
}

// resolveCmd creates the resolve command.
func resolveCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Look up a person's declared pronouns",
		ArgsUsage: "<person-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("person id is required"))
			}
			out, err := d.engine.Resolve(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// normalizeCmd creates the normalize command. It needs no state.
func normalizeCmd() *cli.Command {
	return &cli.Command{
		Name:      "normalize",
		Usage:     "Show how a raw pronoun declaration is normalized",
		ArgsUsage: "<raw>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("raw label is required"))
			}
			raw := strings.Join(c.Args().Slice(), " ")
			label := pronoun.Normalize(raw)
			return outputJSON(map[string]any{
				"raw":      raw,
				"label":    label,
				"sentinel": pronoun.IsSentinel(label),
			})
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show duplicate-tracker and directory-cache statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "person", Usage: "Also report records for this person"},
			&cli.StringFlag{Name: "context", Usage: "Also report records for this context"},
		},
		Action: func(c *cli.Context) error {
			return outputJSON(d.engine.Stats(engine.StatsInput{
				Person:  c.String("person"),
				Context: c.String("context"),
			}))
		},
	}
}

// directoryCmd creates the directory command and its subcommands.
func directoryCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "directory",
		Usage: "Manage the local pronoun directory",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Store a person's pronouns",
				ArgsUsage: "<person-id> <pronouns>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "note", Usage: "Optional note"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() < 2 {
						return outputError(errors.NewInvalidRequest("person id and pronouns are required"))
					}
					var note *string
					if c.IsSet("note") {
						n := c.String("note")
						note = &n
					}
					pronouns := strings.Join(c.Args().Slice()[1:], " ")
					if _, err := d.engine.ValidateLabel(pronouns); err != nil {
						return outputError(err)
					}
					entry, err := db.Upsert(c.Context, d.db, c.Args().Get(0), pronouns, note)
					if err != nil {
						return outputError(err)
					}
					d.engine.Directory().Invalidate(entry.PersonID)
					return outputJSON(entry)
				},
			},
			{
				Name:      "get",
				Usage:     "Show a person's entry",
				ArgsUsage: "<person-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewInvalidRequest("person id is required"))
					}
					entry, err := db.Get(c.Context, d.db, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(entry)
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a person's entry",
				ArgsUsage: "<person-id>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return outputError(errors.NewInvalidRequest("person id is required"))
					}
					id := c.Args().First()
					if err := db.Delete(c.Context, d.db, id); err != nil {
						return outputError(err)
					}
					d.engine.Directory().Invalidate(id)
					return outputJSON(map[string]any{"deleted": true, "person_id": id})
				},
			},
			{
				Name:  "list",
				Usage: "List entries, most recently updated first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "Max entries"},
					&cli.IntFlag{Name: "offset", Usage: "Entries to skip"},
				},
				Action: func(c *cli.Context) error {
					limit, offset := c.Int("limit"), c.Int("offset")
					if limit <= 0 || offset < 0 {
						return outputError(errors.NewInvalidRequest("limit must be positive and offset non-negative"))
					}
					items, total, err := db.List(c.Context, d.db, limit, offset)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"items": items, "total": total})
				},
			},
		},
	}
}

func (d *deps) exportsDir() string {
	return filepath.Join(d.globalDir, transfer.ExportsDirName)
}

// serveCmd creates the serve command.
func serveCmd(d *deps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8484, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(d.engine, d.db, d.cfg, d.log, Version, c.String("bind"), c.Int("port"))
			ctx := c.Context
			if ctx == nil {
				ctx = context.Background()
			}
			return web.Run(ctx, srv, d.log)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var gErr *errors.GuardError
	if stderrors.As(err, &gErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", gErr.Code, gErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// exitCode returns the process exit code for an error from app.Run.
func exitCode(err error) int {
	var exit cli.ExitCoder
	if stderrors.As(err, &exit) {
		return exit.ExitCode()
	}
	return 1
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("input exceeds %d bytes", limit)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// parsePerson parses "id" or "id=Name,Other Name".
func parsePerson(s string) (engine.Person, error) {
	id, names, _ := strings.Cut(s, "=")
	id = strings.TrimSpace(id)
	if id == "" {
		return engine.Person{}, errors.NewInvalidRequest(fmt.Sprintf("invalid person %q: id is empty", s))
	}
	p := engine.Person{ID: id}
	for _, n := range strings.Split(names, ",") {
		if n = strings.TrimSpace(n); n != "" {
			p.Names = append(p.Names, n)
		}
	}
	return p, nil
}

// parseLabels parses repeated "id=label" pairs.
func parseLabels(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	labels := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		id, label, ok := strings.Cut(pair, "=")
		id, label = strings.TrimSpace(id), strings.TrimSpace(label)
		if !ok || id == "" || label == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid label %q: want id=label", pair))
		}
		labels[id] = label
	}
	return labels, nil
}
