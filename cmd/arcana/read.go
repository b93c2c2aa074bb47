package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/arcana/internal/config"
	entzerolog "github.com/mihaimyh/arcana/pkg/entitlement/logger/zerolog"
	"github.com/mihaimyh/arcana/pkg/reading"
)

func newReadCmd(load func() (*config.Config, error)) *cobra.Command {
	var userID, guestID, flagsPath string

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Draw a three card reading in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			ctx := cmd.Context()

			var gate reading.Gate
			if userID != "" {
				be, err := openBackend(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer be.Close()
				svc, err := newEntitlementService(cfg, be.attrs, logger, nil)
				if err != nil {
					return err
				}
				gate = reading.NewEntitlementGate(svc, userID)
			} else {
				flags, err := newFileFlags(flagsPath)
				if err != nil {
					return err
				}
				gate = reading.NewGuestGate(flags, guestID)
			}

			session, err := reading.NewSession(reading.SessionConfig{
				Deck:   reading.SampleDeck(),
				Gate:   gate,
				Reader: reading.NewReader(newGenerator(cfg, logger), entzerolog.NewLogger(logger)),
				Logger: entzerolog.NewLogger(logger),
			})
			if err != nil {
				return err
			}
			return runReading(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "read as this user, metered by their entitlement")
	cmd.Flags().StringVar(&guestID, "guest", "local", "guest id used for the free reading")
	cmd.Flags().StringVar(&flagsPath, "flags-file", defaultFlagsPath(), "file remembering guest readings")
	return cmd
}

// prompter reads one trimmed answer per line.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func (p *prompter) ask(format string, args ...interface{}) (string, error) {
	fmt.Fprintf(p.out, format, args...)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "y" || a == "yes"
}

// runReading walks the session from mode choice to a displayed reading.
func runReading(ctx context.Context, s *reading.Session, in io.Reader, out io.Writer) error {
	p := &prompter{in: bufio.NewScanner(in), out: out}

	answer, err := p.ask("Ask a specific question? [y/N] ")
	if err != nil {
		return err
	}
	if yes(answer) {
		if err := s.ChooseQuestion(); err != nil {
			return err
		}
		for {
			q, err := p.ask("Your question: ")
			if err != nil {
				return err
			}
			err = s.SubmitQuestion(q)
			if errors.Is(err, reading.ErrEmptyQuestion) {
				fmt.Fprintln(out, "The question cannot be empty.")
				continue
			}
			if err != nil {
				return err
			}
			break
		}
	} else if err := s.ChooseGeneral(); err != nil {
		return err
	}

	for {
		if err := pickCards(s, p); err != nil {
			return err
		}

		fmt.Fprintln(out, "Consulting the cards...")
		result, err := s.Submit(ctx)
		if err == nil {
			printReading(out, result)
			return nil
		}
		if refusal, ok := reading.IsRefusal(err); ok {
			fmt.Fprintln(out, refusal.Message)
			return nil
		}
		if !errors.Is(err, reading.ErrGenerationFailed) {
			return err
		}

		fmt.Fprintf(out, "The reading could not be generated: %v\n", err)
		answer, err := p.ask("Try again with the same cards? [y/N] ")
		if err != nil {
			return err
		}
		if !yes(answer) {
			return nil
		}
	}
}

func pickCards(s *reading.Session, p *prompter) error {
	for len(s.Picked()) < 3 {
		available := s.Available()
		fmt.Fprintln(p.out)
		for i, c := range available {
			fmt.Fprintf(p.out, "  %d. %s\n", i+1, c.Name)
		}
		choice, err := p.ask("Pick card %d of 3 (number or name, -name to put one back): ", len(s.Picked())+1)
		if err != nil {
			return err
		}

		if name, ok := strings.CutPrefix(choice, "-"); ok {
			if err := s.Unpick(strings.TrimSpace(name)); err != nil {
				fmt.Fprintln(p.out, err)
			}
			continue
		}

		name := choice
		if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(available) {
			name = available[n-1].Name
		}
		drawn, err := s.Pick(name)
		if err != nil {
			fmt.Fprintln(p.out, err)
			continue
		}
		fmt.Fprintf(p.out, "You drew %s (%s).\n", drawn.Name, drawn.Orientation())
	}
	return nil
}

func printReading(out io.Writer, r *reading.Reading) {
	for _, section := range r.Sections {
		fmt.Fprintf(out, "\n== %s ==\n%s\n", section.Title, section.Body)
	}
	if r.Quote != nil {
		fmt.Fprintf(out, "\n\"%s\" - %s\n", r.Quote.Text, r.Quote.Author)
	}
}
