package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"focusline/internal/app"
	"focusline/internal/breaks"
	"focusline/internal/config"
	"focusline/internal/db"
	"focusline/internal/domain"
	"focusline/internal/engine"
	"focusline/internal/notify"
	"focusline/internal/selector"
	"focusline/internal/server"
	"focusline/internal/session"
	"focusline/internal/store"
	"focusline/internal/timer"
)

var rootCmd = &cobra.Command{
	Use:   "focusline",
	Short: "Focusline CLI",
	Long: `Focusline keeps todo lists and runs pomodoro sessions over them.
- Lists: one per category (work, personal, learning, health, creative) plus any you create.
- Tasks: text, priority, estimate in minutes, optional due date, tags, energy level and complexity.
- Select: filter tasks by due-date range (today/week/month) and category, ranked by priority then due date.
- Session: queue selected tasks as pomodoro items, optionally re-timed by an external optimizer.
- Timer: one running item at a time; finishing an item marks its task completed in the list.
- Event log: every notification is kept, view with 'focusline log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FOCUSLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("optimizer-api-key", "", "API key for the optimizer endpoint")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("optimizer-api-key", rootCmd.PersistentFlags().Lookup("optimizer-api-key"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(selectCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(timerCmd())
	rootCmd.AddCommand(breaksCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func newLogger() hclog.Logger {
	level := hclog.LevelFromString(viper.GetString("log-level"))
	if level == hclog.NoLevel {
		level = hclog.Warn
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "focusline",
		Level:  level,
		Output: os.Stderr,
	})
}

func withEngine(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, app.Options{
		Workspace:       viper.GetString("workspace"),
		OptimizerAPIKey: viper.GetString("optimizer-api-key"),
		Logger:          newLogger(),
		Notifiers:       []notify.Notifier{console()},
	})
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

// console prints notifications for the user unless JSON output was requested.
func console() notify.Notifier {
	return notify.NotifierFunc(func(_ context.Context, n notify.Notification) {
		if viper.GetBool("json") {
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Message)
	})
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create focusline.yml and the default lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s already exists (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				lists, err := rt.Engine.Store.Lists(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Workspace ready with %d lists\n", len(lists))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "list", Short: "Manage todo lists"}
	cmd.AddCommand(listCreateCmd())
	cmd.AddCommand(listLsCmd())
	cmd.AddCommand(listShowCmd())
	cmd.AddCommand(listRenameCmd())
	cmd.AddCommand(listDeleteCmd())
	cmd.AddCommand(listUseCmd())
	return cmd
}

func listCreateCmd() *cobra.Command {
	var name, category string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				l, err := rt.Engine.Store.CreateList(ctx, name, domain.Category(category))
				if err != nil {
					return err
				}
				return printJSONOr(l, func() { printLists([]domain.List{l}, "") })
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "list name")
	cmd.Flags().StringVar(&category, "category", string(domain.CategoryWork), "work, personal, learning, health or creative")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func listLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List all lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				snap, err := rt.Engine.Store.Snapshot(ctx)
				if err != nil {
					return err
				}
				return printJSONOr(snap.State, func() { printLists(snap.State.Lists, snap.State.ActiveListID) })
			})
		},
	}
}

func listShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <list-id>",
		Short: "Show a list and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				l, err := rt.Engine.Store.GetList(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOr(l, func() {
					fmt.Printf("%s (%s)\n", l.Name, l.Category)
					printTasks(l.Items)
				})
			})
		},
	}
}

func listRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <list-id> <name>",
		Short: "Rename a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				name := args[1]
				l, err := rt.Engine.Store.UpdateList(ctx, args[0], store.ListPatch{Name: &name})
				if err != nil {
					return err
				}
				return printJSONOr(l, func() { printLists([]domain.List{l}, "") })
			})
		},
	}
}

func listDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <list-id>",
		Short: "Delete a list and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				if err := rt.Engine.Store.DeleteList(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted list %s\n", args[0])
				return nil
			})
		},
	}
}

func listUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <list-id>",
		Short: "Set the active list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				if err := rt.Engine.Store.SetActiveList(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Active list: %s\n", args[0])
				return nil
			})
		},
	}
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(taskAddCmd())
	cmd.AddCommand(taskUpdateCmd())
	cmd.AddCommand(taskDeleteCmd())
	cmd.AddCommand(taskMoveCmd())
	cmd.AddCommand(taskLsCmd())
	return cmd
}

type taskFlags struct {
	text, description, category, priority, status, due, energy, complexity string
	estimate                                                               int
	tags                                                                   []string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.text, "text", "", "task text")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().StringVar(&f.category, "category", "", "category (defaults to the list's)")
	cmd.Flags().StringVar(&f.priority, "priority", "", "low, medium, high or urgent")
	cmd.Flags().StringVar(&f.status, "status", "", "pending or completed")
	cmd.Flags().IntVar(&f.estimate, "estimate", 0, "estimated minutes")
	cmd.Flags().StringVar(&f.due, "due", "", "due date YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringVar(&f.energy, "energy", "", "low, medium or high")
	cmd.Flags().StringVar(&f.complexity, "complexity", "", "simple, moderate or complex")
}

func taskAddCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "add [list-id]",
		Short: "Add a task (to the active list by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := store.TaskInput{
				Text:          f.text,
				Description:   f.description,
				Category:      domain.Category(f.category),
				Priority:      domain.Priority(f.priority),
				Status:        domain.Status(f.status),
				EstimatedTime: f.estimate,
				Tags:          f.tags,
				EnergyLevel:   domain.EnergyLevel(f.energy),
				Complexity:    domain.Complexity(f.complexity),
			}
			if f.due != "" {
				due, err := domain.ParseDate(f.due)
				if err != nil {
					return err
				}
				in.DueDate = &due
			}
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				listID, err := listArg(ctx, rt, args)
				if err != nil {
					return err
				}
				t, err := rt.Engine.Store.AddTask(ctx, listID, in)
				if err != nil {
					return err
				}
				return printJSONOr(t, func() { printTasks([]domain.Task{t}) })
			})
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "update <list-id> <task-id>",
		Short: "Update a task; only flags given are changed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch store.TaskPatch
			changed := cmd.Flags().Changed
			if changed("text") {
				patch.Text = &f.text
			}
			if changed("description") {
				patch.Description = &f.description
			}
			if changed("category") {
				v := domain.Category(f.category)
				patch.Category = &v
			}
			if changed("priority") {
				v := domain.Priority(f.priority)
				patch.Priority = &v
			}
			if changed("status") {
				v := domain.Status(f.status)
				patch.Status = &v
			}
			if changed("estimate") {
				patch.EstimatedTime = &f.estimate
			}
			if changed("tag") {
				patch.Tags = &f.tags
			}
			if changed("energy") {
				v := domain.EnergyLevel(f.energy)
				patch.EnergyLevel = &v
			}
			if changed("complexity") {
				v := domain.Complexity(f.complexity)
				patch.Complexity = &v
			}
			if changed("due") {
				if f.due == "" {
					patch.ClearDueDate = true
				} else {
					due, err := domain.ParseDate(f.due)
					if err != nil {
						return err
					}
					patch.DueDate = &due
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				t, err := rt.Engine.Store.UpdateTask(ctx, args[0], args[1], patch)
				if err != nil {
					return err
				}
				return printJSONOr(t, func() { printTasks([]domain.Task{t}) })
			})
		},
	}
	f.register(cmd)
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <list-id> <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				if err := rt.Engine.Store.DeleteTask(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Deleted task %s\n", args[1])
				return nil
			})
		},
	}
}

func taskMoveCmd() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "move <list-id> <task-id>",
		Short: "Move a task to another list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				t, err := rt.Engine.Store.MoveTask(ctx, args[0], to, args[1])
				if err != nil {
					return err
				}
				return printJSONOr(t, func() { printTasks([]domain.Task{t}) })
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "destination list id")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func taskLsCmd() *cobra.Command {
	var due, category, energy string
	cmd := &cobra.Command{
		Use:   "ls [list-id]",
		Short: "List tasks of a list, or across lists by --due or --category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				var tasks []domain.Task
				var err error
				switch {
				case due != "":
					var d domain.Date
					if d, err = domain.ParseDate(due); err != nil {
						return err
					}
					tasks, err = rt.Engine.Store.TasksByDate(ctx, d)
				case category != "":
					tasks, err = rt.Engine.Store.TasksByCategory(ctx, domain.Category(category))
				default:
					var listID string
					if listID, err = listArg(ctx, rt, args); err != nil {
						return err
					}
					if energy != "" {
						tasks, err = rt.Engine.Store.RankForEnergy(ctx, listID, domain.EnergyLevel(energy))
					} else {
						var l domain.List
						l, err = rt.Engine.Store.GetList(ctx, listID)
						tasks = l.Items
					}
				}
				if err != nil {
					return err
				}
				return printJSONOr(tasks, func() { printTasks(tasks) })
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "tasks due on YYYY-MM-DD across lists")
	cmd.Flags().StringVar(&category, "category", "", "tasks of lists in this category")
	cmd.Flags().StringVar(&energy, "energy", "", "rank for energy level low, medium or high")
	return cmd
}

func listArg(ctx context.Context, rt *app.Workspace, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	id, err := rt.Engine.Store.ActiveListID(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("no active list; pass a list id or run focusline list use")
	}
	return id, nil
}

func parseCriteria(ranges, categories []string) (selector.Criteria, error) {
	var c selector.Criteria
	for _, raw := range ranges {
		r, err := selector.ParseRange(raw)
		if err != nil {
			return c, err
		}
		c.Ranges = append(c.Ranges, r)
	}
	for _, raw := range categories {
		cat := domain.Category(raw)
		if !cat.IsValid() {
			return c, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, raw)
		}
		c.Categories = append(c.Categories, cat)
	}
	return c, nil
}

func selectCmd() *cobra.Command {
	var ranges, categories []string
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Show pending tasks ranked for a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCriteria(ranges, categories)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				items, err := rt.Engine.Select(ctx, c)
				if err != nil {
					return err
				}
				return printJSONOr(items, func() { printCandidates(items) })
			})
		},
	}
	cmd.Flags().StringSliceVar(&ranges, "range", nil, "today, week or month (repeatable)")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "category filter (repeatable)")
	return cmd
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Plan and inspect the pomodoro queue"}
	cmd.AddCommand(sessionPlanCmd())
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionClearCmd())
	return cmd
}

func sessionPlanCmd() *cobra.Command {
	var ids, ranges, categories []string
	var all, useOptimizer bool
	var contextText, energy string
	var length int
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Queue selected tasks as pomodoro items",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseCriteria(ranges, categories)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				if all {
					items, err := rt.Engine.Select(ctx, c)
					if err != nil {
						return err
					}
					for _, it := range items {
						ids = append(ids, it.Task.ID)
					}
				}
				oc := rt.Defaults()
				oc.FreeText = contextText
				if energy != "" {
					oc.EnergyLevel = domain.EnergyLevel(energy)
				}
				if length > 0 {
					oc.SessionLength = length
				}
				plan, err := rt.Engine.PlanSession(ctx, engine.PlanOptions{
					TaskIDs:  ids,
					Criteria: c,
					Context:  oc,
					Optimize: useOptimizer,
				})
				if err != nil {
					return err
				}
				return printJSONOr(plan, func() { printQueue(plan.Queue, "") })
			})
		},
	}
	cmd.Flags().StringSliceVar(&ids, "task", nil, "task id to queue (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "queue every task that passes the filters")
	cmd.Flags().StringSliceVar(&ranges, "range", nil, "today, week or month (repeatable)")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "category filter (repeatable)")
	cmd.Flags().StringVar(&contextText, "context", "", "free-text context for the session")
	cmd.Flags().StringVar(&energy, "energy", "", "energy level override")
	cmd.Flags().IntVar(&length, "length", 0, "preferred session length in minutes")
	cmd.Flags().BoolVar(&useOptimizer, "optimize", false, "ask the configured optimizer to re-time the queue")
	return cmd
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the pomodoro queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				sess, err := rt.Engine.OpenSession(ctx)
				if err != nil {
					return err
				}
				q := sess.Queue()
				return printJSONOr(q, func() { printQueue(q, sess.Timer.ActiveID()) })
			})
		},
	}
}

func sessionClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop the pomodoro queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				if err := rt.Engine.Sessions.Clear(ctx); err != nil {
					return err
				}
				fmt.Println("Session cleared")
				return nil
			})
		},
	}
}

func timerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "timer", Short: "Drive the pomodoro timer"}
	cmd.AddCommand(timerActionCmd("start", "Start an item; any running item is paused", (*timer.Engine).Start))
	cmd.AddCommand(timerActionCmd("stop", "Pause an item", (*timer.Engine).Stop))
	cmd.AddCommand(timerActionCmd("reset", "Reset an item to a full session", (*timer.Engine).Reset))
	cmd.AddCommand(timerActionCmd("complete", "Toggle an item's completion", func(t *timer.Engine, id string) error {
		_, err := t.ToggleComplete(id)
		return err
	}))
	cmd.AddCommand(timerStatusCmd())
	cmd.AddCommand(timerRunCmd())
	return cmd
}

func timerActionCmd(use, short string, fn func(*timer.Engine, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				sess, err := rt.Engine.OpenSession(ctx)
				if err != nil {
					return err
				}
				if err := fn(sess.Timer, args[0]); err != nil {
					return err
				}
				if err := sess.Save(ctx); err != nil {
					return err
				}
				it, _ := sess.Timer.Item(args[0])
				return printJSONOr(it, func() { printItems([]domain.PomodoroItem{it}, sess.Timer.ActiveID()) })
			})
		},
	}
}

func timerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				sess, err := rt.Engine.OpenSession(ctx)
				if err != nil {
					return err
				}
				active := sess.Timer.ActiveID()
				if active == "" {
					return printJSONOr(map[string]any{"active": nil}, func() { fmt.Println("No item running") })
				}
				it, _ := sess.Timer.Item(active)
				return printJSONOr(it, func() { fmt.Printf("%s  %s\n", engine.Clock(it.RemainingTime), it.Text) })
			})
		},
	}
}

func timerRunCmd() *cobra.Command {
	var keepGoing bool
	cmd := &cobra.Command{
		Use:   "run [item-id]",
		Short: "Run the timer in the foreground until the item completes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				sess, err := rt.Engine.OpenSession(ctx)
				if err != nil {
					return err
				}
				switch {
				case len(args) == 1:
					err = sess.Timer.Start(args[0])
				case sess.Timer.ActiveID() == "":
					_, err = sess.Timer.StartNext()
				}
				if err != nil {
					return err
				}
				it, _ := sess.Timer.Item(sess.Timer.ActiveID())
				fmt.Printf("Running %q (Ctrl-C to pause)\n", it.Text)
				err = sess.Run(ctx, rt.Config.Timer.Tick, !keepGoing, func(res timer.TickResult) {
					fmt.Printf("\r%s ", engine.Clock(res.Remaining))
					if res.Completed {
						fmt.Println()
					}
				})
				if ctx.Err() != nil {
					// Interrupted: leave the item paused where it stopped.
					if id := sess.Timer.ActiveID(); id != "" {
						_ = sess.Timer.Stop(id)
					}
					fmt.Println()
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "keep ticking after the item completes")
	return cmd
}

func breaksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "breaks", Short: "Break suggestions"}
	var category, energy string
	suggest := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest break activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			acts := breaks.Activities(domain.Category(category), domain.EnergyLevel(energy))
			return printJSONOr(acts, func() {
				for _, a := range acts {
					fmt.Println("-", a)
				}
			})
		},
	}
	suggest.Flags().StringVar(&category, "category", string(domain.CategoryWork), "task category")
	suggest.Flags().StringVar(&energy, "energy", string(domain.EnergyMedium), "energy level")
	cmd.AddCommand(suggest)
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every notification raised by planning, the timer and sync, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var kind string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				items, err := rt.Events.Latest(ctx, n, kind)
				if err != nil {
					return err
				}
				return printJSONOr(items, func() {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"ID", "Time", "Level", "Kind", "Message"})
					for _, e := range items {
						tw.AppendRow(table.Row{e.ID, e.TS, e.Level, e.Kind, e.Message})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of events")
	cmd.Flags().StringVar(&kind, "kind", "", "session, optimize, timer, sync or store")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, rt *app.Workspace) error {
				if !cmd.Flags().Changed("addr") {
					addr = rt.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && rt.Config.Server.BasePath != "" {
					basePath = rt.Config.Server.BasePath
				}
				sess, err := rt.Engine.OpenSession(ctx)
				if err != nil {
					return err
				}
				handler, err := server.New(server.Config{
					Engine:   rt.Engine,
					Session:  sess,
					Events:   rt.Events,
					Defaults: rt.Defaults(),
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: viper.GetString("jwt-secret")},
					Logger:   rt.Logger.Named("server"),
				})
				if err != nil {
					return err
				}
				go func() {
					if err := sess.Run(ctx, rt.Config.Timer.Tick, false, nil); err != nil {
						rt.Logger.Error("timer stopped", "error", err)
					}
				}()
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Focusline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret; enables bearer auth (env FOCUSLINE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func printJSONOr(v any, render func()) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printLists(lists []domain.List, activeID string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"", "ID", "Name", "Category", "Tasks", "Open"})
	for _, l := range lists {
		marker := ""
		if l.ID == activeID {
			marker = "*"
		}
		open := 0
		for _, t := range l.Items {
			if !t.Status.IsCompleted() {
				open++
			}
		}
		tw.AppendRow(table.Row{marker, l.ID, l.Name, l.Category, len(l.Items), open})
	}
	tw.Render()
}

func printTasks(tasks []domain.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Text", "Priority", "Status", "Est", "Due", "Tags"})
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.String()
		}
		tw.AppendRow(table.Row{t.ID, t.Text, t.Priority, t.Status, fmt.Sprintf("%dm", t.EstimatedTime), due, strings.Join(t.Tags, ",")})
	}
	tw.Render()
}

func printCandidates(items []selector.Candidate) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"List", "ID", "Text", "Priority", "Est", "Due"})
	for _, c := range items {
		due := ""
		if c.Task.DueDate != nil {
			due = c.Task.DueDate.String()
		}
		tw.AppendRow(table.Row{c.ListID, c.Task.ID, c.Task.Text, c.Task.Priority, fmt.Sprintf("%dm", c.Task.EstimatedTime), due})
	}
	tw.Render()
}

func printQueue(q session.Queue, activeID string) {
	if q.AIOptimized {
		fmt.Println("AI optimized queue")
	}
	printItems(q.Items, activeID)
}

func printItems(items []domain.PomodoroItem, activeID string) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"", "ID", "Text", "Status", "Remaining", "Break"})
	for _, it := range items {
		marker := ""
		if it.ID == activeID {
			marker = ">"
		}
		brk := ""
		if it.CustomBreak != nil {
			brk = fmt.Sprintf("%s (%dm)", it.CustomBreak.Activity, it.CustomBreak.Duration)
		}
		tw.AppendRow(table.Row{marker, it.ID, it.Text, it.Status, engine.Clock(it.RemainingTime), brk})
	}
	tw.Render()
}
