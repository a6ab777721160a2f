package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/verdict/internal/control"
	"github.com/vietddude/verdict/internal/core/domain"
	"github.com/vietddude/verdict/internal/processing/runner"
)

var (
	checkCmd = &cobra.Command{
		Use:   "check <statement>...",
		Short: "Verify statements and wait for every check to finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitAndWait(cmd, domain.ItemKindVerification, args)
		},
	}

	generateCmd = &cobra.Command{
		Use:   "generate <question>...",
		Short: "Write essays from the material bank and wait for them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitAndWait(cmd, domain.ItemKindGeneration, args)
		},
	}

	itemsCmd = &cobra.Command{
		Use:       "items [verification|generation]",
		Short:     "List persisted work items",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(domain.ItemKindVerification), string(domain.ItemKindGeneration)},
		RunE:      runItems,
	}

	retryCmd = &cobra.Command{
		Use:   "retry <verification|generation> <id>",
		Short: "Reset an item's checks and run them again",
		Args:  cobra.ExactArgs(2),
		RunE:  runRetry,
	}

	removeCmd = &cobra.Command{
		Use:   "remove <verification|generation> <id>",
		Short: "Delete a work item",
		Args:  cobra.ExactArgs(2),
		RunE:  runRemove,
	}

	clearCmd = &cobra.Command{
		Use:   "clear <verification|generation>",
		Short: "Delete every work item of one kind",
		Args:  cobra.ExactArgs(1),
		RunE:  runClear,
	}
)

func init() {
	rootCmd.AddCommand(checkCmd, generateCmd, itemsCmd, retryCmd, removeCmd, clearCmd)
}

// openApp builds the application for a one-shot command. The returned
// context ends on SIGINT or SIGTERM.
func openApp(cmd *cobra.Command) (*control.App, context.Context, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app, err := control.New(ctx, cfg)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return app, ctx, func() {
		_ = app.Close()
		stop()
	}, nil
}

func pipeline(app *control.App, kind string) (*runner.Runner, error) {
	r, ok := app.Pipeline(domain.ItemKind(kind))
	if !ok {
		return nil, fmt.Errorf("unknown item kind %q (want verification or generation)", kind)
	}
	return r, nil
}

const progressPoll = 250 * time.Millisecond

// waitFor blocks until r has no running checks or ctx ends, printing live
// progress of the items in ids as it changes.
func waitFor(ctx context.Context, out io.Writer, r *runner.Runner, ids []int) {
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	ticker := time.NewTicker(progressPoll)
	defer ticker.Stop()
	checks := r.Store().Checks()
	seen := map[string]string{}
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, line := range progressLines(checks, lookup(r, ids), seen) {
				fmt.Fprintln(out, line)
			}
		}
	}
}

func lookup(r *runner.Runner, ids []int) []domain.WorkItem {
	var items []domain.WorkItem
	for _, id := range ids {
		if it, ok := r.Store().Get(id); ok {
			items = append(items, it)
		}
	}
	return items
}

func submitAndWait(cmd *cobra.Command, kind domain.ItemKind, inputs []string) error {
	app, ctx, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	r, _ := app.Pipeline(kind)
	var ids []int
	for _, in := range inputs {
		item, _, err := r.Submit(ctx, in)
		if err != nil {
			return err
		}
		ids = append(ids, item.ID)
	}
	waitFor(ctx, cmd.ErrOrStderr(), r, ids)
	printItems(cmd, r, ids)
	return ctx.Err()
}

func printItems(cmd *cobra.Command, r *runner.Runner, ids []int) {
	out := cmd.OutOrStdout()
	checks := r.Store().Checks()
	items := lookup(r, ids)
	fmt.Fprint(out, renderItems(checks, items))

	for _, it := range items {
		if st, ok := it.Checks[domain.CheckEssay]; ok && st.Status == domain.StatusDone {
			fmt.Fprintln(out, panelStyle.Render(titleStyle.Render(it.Input)+"\n\n"+st.Value))
			continue
		}
		if d := renderDetails(checks, it); d != "" {
			fmt.Fprintln(out, d)
		}
	}
}

func runItems(cmd *cobra.Command, args []string) error {
	app, _, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	kinds := []string{string(domain.ItemKindVerification), string(domain.ItemKindGeneration)}
	if len(args) == 1 {
		kinds = args
	}
	for _, kind := range kinds {
		r, err := pipeline(app, kind)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(kind))
		fmt.Fprintln(cmd.OutOrStdout(), renderItems(r.Store().Checks(), r.Items()))
	}
	return nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	app, ctx, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	r, err := pipeline(app, args[0])
	if err != nil {
		return err
	}
	_, ok, err := r.Retry(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("item %d not found", id)
	}
	waitFor(ctx, cmd.ErrOrStderr(), r, []int{id})
	printItems(cmd, r, []int{id})
	return ctx.Err()
}

func runRemove(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	app, ctx, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	r, err := pipeline(app, args[0])
	if err != nil {
		return err
	}
	removed, err := r.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("item %d not found", id)
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Item %d removed.", id)))
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	app, ctx, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	r, err := pipeline(app, args[0])
	if err != nil {
		return err
	}
	if err := r.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("All "+args[0]+" items cleared."))
	return nil
}
