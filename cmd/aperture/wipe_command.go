package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"aperture/internal/logging"
	"aperture/internal/naming"
	"aperture/internal/oplock"
	"aperture/internal/store"
	"aperture/internal/wipe"
)

func newWipeCommand(ctx *commandContext) *cobra.Command {
	var study string
	var listFile string
	var dryRun bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "wipe [interview]",
		Short: "Remove every derived artifact of an interview",
		Long: `Resolve everything derived from an interview across all stages (decrypted
copies, split streams, face features, transcripts, reports) and remove the
files, prune emptied directories up to the data root, and delete the rows.
Encrypted sources under the raw trees are never touched.

A wipe is idempotent: re-wiping an already wiped interview is a no-op.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interviews := args
			if listFile != "" {
				if len(args) > 0 {
					return errors.New("pass an interview name or --file, not both")
				}
				loaded, err := readInterviewList(listFile)
				if err != nil {
					return err
				}
				interviews = loaded
			}
			if len(interviews) == 0 {
				return errors.New("nothing to wipe: pass an interview name or --file")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := oplock.Acquire(cfg, oplock.Wipe)
			if err != nil {
				return err
			}
			defer lock.Release()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			wiper := wipe.New(st, cfg, logger)
			runCtx := cmd.Context()
			out := cmd.OutOrStdout()

			var manifests []*wipe.Manifest
			for _, raw := range interviews {
				interview := naming.NormalizeName(raw)
				resolvedStudy := study
				if resolvedStudy == "" {
					resolvedStudy, err = studyForInterview(runCtx, st, interview)
					if err != nil {
						return err
					}
				}
				manifest, err := wiper.Resolve(runCtx, resolvedStudy, interview)
				if err != nil {
					return err
				}
				if manifest.Empty() {
					fmt.Fprintf(out, "Nothing recorded for %s/%s\n", resolvedStudy, interview)
					continue
				}
				printManifest(out, manifest, dryRun)
				manifests = append(manifests, manifest)
			}
			if len(manifests) == 0 || dryRun {
				return nil
			}

			if !yes {
				ok, err := confirm(out, cmd.InOrStdin(), fmt.Sprintf("Wipe %d interview(s)?", len(manifests)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Aborted")
					return nil
				}
			}

			var bar *progressbar.ProgressBar
			if len(manifests) > 1 && isTerminal(out) {
				bar = progressbar.Default(int64(len(manifests)), "wiping")
			}
			totals := wipe.Outcome{}
			for _, manifest := range manifests {
				outcome := wiper.Execute(runCtx, manifest)
				totals.FilesRemoved += outcome.FilesRemoved
				totals.DirsRemoved += outcome.DirsRemoved
				totals.RowsDeleted += outcome.RowsDeleted
				totals.Failures += outcome.Failures
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			if bar != nil {
				_ = bar.Finish()
			}

			fmt.Fprintf(out, "Removed %d files and %d directories, deleted %d rows\n",
				totals.FilesRemoved, totals.DirsRemoved, totals.RowsDeleted)
			if totals.Failures > 0 {
				fmt.Fprintf(out, "%d removals failed; the wipe can be re-run safely (see the log)\n", totals.Failures)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&study, "study", "", "Study the interview belongs to (resolved from the inventory when omitted)")
	cmd.Flags().StringVar(&listFile, "file", "", "File listing one interview per line (# comments allowed)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print what would be removed without removing anything")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}

func printManifest(out io.Writer, m *wipe.Manifest, full bool) {
	rows := len(m.TranscriptKeys) + len(m.StreamKeys) + len(m.VideoKeys) +
		len(m.FileKeys) + len(m.SourceKeys)
	fmt.Fprintf(out, "%s/%s: %d files, %d directories, %d row keys\n",
		m.Study, m.Interview, len(m.Files), len(m.Dirs), rows)
	if !full {
		return
	}
	for _, file := range m.Files {
		fmt.Fprintf(out, "  file %s\n", file)
	}
	for _, dir := range m.Dirs {
		fmt.Fprintf(out, "  dir  %s\n", dir)
	}
}

// studyForInterview resolves which study an interview belongs to when the
// operator did not name one. Ambiguity is an error rather than a guess.
func studyForInterview(ctx context.Context, st *store.Store, interview string) (string, error) {
	files, err := st.ListSourceFiles(ctx, "")
	if err != nil {
		return "", err
	}
	var studies []string
	for _, file := range files {
		if file.InterviewName != interview {
			continue
		}
		if len(studies) == 0 || studies[len(studies)-1] != file.Study {
			studies = append(studies, file.Study)
		}
	}
	switch len(studies) {
	case 0:
		return "", fmt.Errorf("interview %q not found in the source inventory; pass --study", interview)
	case 1:
		return studies[0], nil
	default:
		return "", fmt.Errorf("interview %q exists in studies %s; pass --study",
			interview, strings.Join(studies, ", "))
	}
}

func readInterviewList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open interview list: %w", err)
	}
	defer file.Close()

	var interviews []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		interviews = append(interviews, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read interview list: %w", err)
	}
	return interviews, nil
}
