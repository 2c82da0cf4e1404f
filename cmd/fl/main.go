package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/repo"
	"fieldline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fieldline CLI",
	Long: `Fieldline tracks field-work activities against pre-purchased hour contracts.
- Workspace: the .fieldline directory holding the database; fieldline.yml next to it holds policy knobs.
- Workers perform activities; clients buy contracts (buckets of hours).
- Activities move unassigned -> scheduled -> in_progress -> done -> verified -> invoiced.
- Verified hours consume contract capacity; invoicing flips them to invoiced so they are billed at most once.
- Event log: diary of changes, view with 'fl log tail'.`,
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
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FIELDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorID() string {
	return viper.GetString("actor-id")
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
			}
			fmt.Println("workspace ready:", db.Path(workspace))
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := config.FromFile(path); err != nil {
				return err
			}
			fmt.Println("ok:", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the default config YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	})
	return cfg
}

func workerCmd() *cobra.Command {
	w := &cobra.Command{Use: "worker", Short: "Manage workers"}
	w.AddCommand(workerListCmd())
	w.AddCommand(workerCreateCmd())
	w.AddCommand(workerShowCmd())
	w.AddCommand(workerUpdateCmd())
	w.AddCommand(workerDeleteCmd())
	return w
}

func workerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWorkers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Rate", "Specialty"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Name, it.HourlyRate, it.Specialty})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func workerCreateCmd() *cobra.Command {
	var id, name, specialty string
	var rate float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWorker(ctx, engine.WorkerCreateOptions{
					ID: id, Name: name, HourlyRate: rate, Specialty: specialty, ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "worker id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "worker name")
	cmd.Flags().Float64Var(&rate, "rate", 0, "hourly rate")
	cmd.Flags().StringVar(&specialty, "specialty", "", "specialty")
	return cmd
}

func workerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				w, err := r.GetWorker(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
}

func workerUpdateCmd() *cobra.Command {
	var name, specialty string
	var rate float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var u repo.WorkerUpdate
				if cmd.Flags().Changed("name") {
					u.Name = &name
				}
				if cmd.Flags().Changed("rate") {
					u.HourlyRate = &rate
				}
				if cmd.Flags().Changed("specialty") {
					u.Specialty = &specialty
				}
				w, err := e.UpdateWorker(ctx, args[0], u, actorID())
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "worker name")
	cmd.Flags().Float64Var(&rate, "rate", 0, "hourly rate")
	cmd.Flags().StringVar(&specialty, "specialty", "", "specialty")
	return cmd
}

func workerDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteWorker(ctx, args[0], actorID())
			})
		},
	}
}

func clientCmd() *cobra.Command {
	c := &cobra.Command{Use: "client", Short: "Manage clients"}
	c.AddCommand(clientListCmd())
	c.AddCommand(clientCreateCmd())
	c.AddCommand(clientShowCmd())
	c.AddCommand(clientUpdateCmd())
	c.AddCommand(clientDeleteCmd())
	return c
}

func clientListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListClients(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Billing rate"})
				for _, it := range items {
					rate := ""
					if it.BillingRate != nil {
						rate = fmt.Sprintf("%.2f", *it.BillingRate)
					}
					tw.AppendRow(table.Row{it.ID, it.Name, it.Email, rate})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func clientCreateCmd() *cobra.Command {
	var id, name, contact, email string
	var rate float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ClientCreateOptions{
					ID: id, Name: name, ContactName: contact, Email: email, ActorID: actorID(),
				}
				if cmd.Flags().Changed("billing-rate") {
					opts.BillingRate = &rate
				}
				c, err := e.CreateClient(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "client id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "client name")
	cmd.Flags().StringVar(&contact, "contact", "", "contact name")
	cmd.Flags().StringVar(&email, "email", "", "email (unique)")
	cmd.Flags().Float64Var(&rate, "billing-rate", 0, "billing rate")
	return cmd
}

func clientShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := r.GetClient(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
}

func clientUpdateCmd() *cobra.Command {
	var name, contact, email string
	var rate float64
	var clearRate bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var u repo.ClientUpdate
				if cmd.Flags().Changed("name") {
					u.Name = &name
				}
				if cmd.Flags().Changed("contact") {
					u.ContactName = &contact
				}
				if cmd.Flags().Changed("email") {
					u.Email = &email
				}
				if cmd.Flags().Changed("billing-rate") {
					u.BillingRate = &rate
				}
				u.ClearRate = clearRate
				c, err := e.UpdateClient(ctx, args[0], u, actorID())
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "client name")
	cmd.Flags().StringVar(&contact, "contact", "", "contact name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().Float64Var(&rate, "billing-rate", 0, "billing rate")
	cmd.Flags().BoolVar(&clearRate, "clear-billing-rate", false, "remove the billing rate")
	return cmd
}

func clientDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteClient(ctx, args[0], actorID())
			})
		},
	}
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{Use: "contract", Short: "Manage hour contracts"}
	c.AddCommand(contractListCmd())
	c.AddCommand(contractCreateCmd())
	c.AddCommand(contractShowCmd())
	c.AddCommand(contractUpdateCmd())
	c.AddCommand(contractDeleteCmd())
	c.AddCommand(contractHoursCmd())
	return c
}

func contractListCmd() *cobra.Command {
	var f repo.ContractFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListContracts(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Order", "Hours", "Status"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.ClientID, it.OrderNumber, it.TotalHours, it.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func contractCreateCmd() *cobra.Command {
	var id, clientID, order, start, end string
	var hours float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateContract(ctx, engine.ContractCreateOptions{
					ID: id, ClientID: clientID, OrderNumber: order,
					TotalHours: hours, StartDate: start, EndDate: end, ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "contract id (generated when empty)")
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().StringVar(&order, "order", "", "order number (unique per client)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "total purchased hours")
	cmd.Flags().StringVar(&start, "start", "", "start date (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end date (RFC3339)")
	return cmd
}

func contractShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := r.GetContract(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
}

func contractUpdateCmd() *cobra.Command {
	var start, end, status string
	var hours float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var u repo.ContractUpdate
				if cmd.Flags().Changed("hours") {
					u.TotalHours = &hours
				}
				if cmd.Flags().Changed("start") {
					u.StartDate = &start
				}
				if cmd.Flags().Changed("end") {
					u.EndDate = &end
				}
				if cmd.Flags().Changed("status") {
					u.Status = &status
				}
				c, err := e.UpdateContract(ctx, args[0], u, actorID())
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 0, "total purchased hours")
	cmd.Flags().StringVar(&start, "start", "", "start date (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end date (RFC3339)")
	cmd.Flags().StringVar(&status, "status", "", "active or closed")
	return cmd
}

func contractDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteContract(ctx, args[0], actorID())
			})
		},
	}
}

func contractHoursCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hours <id>",
		Short: "Show contract hour ledger position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ContractHours(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
}

func activityCmd() *cobra.Command {
	a := &cobra.Command{Use: "activity", Short: "Manage activities"}
	a.AddCommand(activityListCmd())
	a.AddCommand(activityCreateCmd())
	a.AddCommand(activityShowCmd())
	a.AddCommand(activityUpdateCmd())
	a.AddCommand(activityDeleteCmd())
	a.AddCommand(activityAssignCmd())
	a.AddCommand(activityStatusCmd())
	return a
}

func activityListCmd() *cobra.Command {
	var f repo.ActivityFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListActivities(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Worker", "Start", "Hours"})
				for _, it := range items {
					worker := ""
					if it.WorkerID != nil {
						worker = *it.WorkerID
					}
					tw.AppendRow(table.Row{it.ID, it.Title, it.Status, worker, it.ScheduledStart, it.DurationHours})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	cmd.Flags().StringVar(&f.ContractID, "contract", "", "contract filter")
	cmd.Flags().StringVar(&f.WorkerID, "worker", "", "worker filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func activityCreateCmd() *cobra.Command {
	var opts engine.ActivityCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule an activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				a, err := e.CreateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "activity id (generated when empty)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id")
	cmd.Flags().StringVar(&opts.ContractID, "contract", "", "contract id")
	cmd.Flags().StringVar(&opts.WorkerID, "worker", "", "worker id (assigns and schedules)")
	cmd.Flags().StringVar(&opts.ScheduledStart, "start", "", "scheduled start (RFC3339)")
	cmd.Flags().StringVar(&opts.ScheduledEnd, "end", "", "scheduled end (RFC3339)")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	return cmd
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
}

func activityUpdateCmd() *cobra.Command {
	var title, contract, start, end, location, description string
	var clearContract bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ActivityUpdateOptions{ActorID: actorID(), ClearContract: clearContract}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("contract") {
					opts.ContractID = &contract
				}
				if cmd.Flags().Changed("start") {
					opts.ScheduledStart = &start
				}
				if cmd.Flags().Changed("end") {
					opts.ScheduledEnd = &end
				}
				if cmd.Flags().Changed("location") {
					opts.Location = &location
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				a, err := e.UpdateActivity(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&contract, "contract", "", "contract id")
	cmd.Flags().BoolVar(&clearContract, "clear-contract", false, "detach from contract")
	cmd.Flags().StringVar(&start, "start", "", "scheduled start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "scheduled end (RFC3339)")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func activityDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteActivity(ctx, args[0], actorID())
			})
		},
	}
}

func activityAssignCmd() *cobra.Command {
	var worker string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a worker (omit --worker to unassign)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AssignActivity(ctx, args[0], worker, actorID())
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&worker, "worker", "", "worker id")
	return cmd
}

func activityStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Transition activity status (--force for admin override)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetActivityStatus(ctx, args[0], args[1], viper.GetBool("force"), actorID())
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	return cmd
}

func availabilityCmd() *cobra.Command {
	av := &cobra.Command{Use: "availability", Short: "Availability checks"}
	var worker, start, end, exclude string
	check := &cobra.Command{
		Use:   "check",
		Short: "Check a worker's availability over an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CheckAvailability(ctx, worker, start, end, exclude)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	check.Flags().StringVar(&worker, "worker", "", "worker id")
	check.Flags().StringVar(&start, "start", "", "interval start (RFC3339)")
	check.Flags().StringVar(&end, "end", "", "interval end (RFC3339)")
	check.Flags().StringVar(&exclude, "exclude", "", "activity id to exclude")
	av.AddCommand(check)
	return av
}

func invoiceCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invoice", Short: "Invoices and payouts"}
	inv.AddCommand(invoiceClientCmd())
	inv.AddCommand(invoiceWorkerCmd())
	inv.AddCommand(invoiceListCmd())
	inv.AddCommand(invoiceShowCmd())
	inv.AddCommand(invoiceStatusCmd())
	return inv
}

func invoiceClientCmd() *cobra.Command {
	var client, start, end string
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Generate a client invoice for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, err := e.GenerateClientInvoice(ctx, client, start, end, actorID())
				if err != nil {
					return err
				}
				return printJSON(inv)
			})
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "client id")
	cmd.Flags().StringVar(&start, "start", "", "period start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "period end (RFC3339)")
	return cmd
}

func invoiceWorkerCmd() *cobra.Command {
	var worker, start, end string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Generate a worker payout for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, err := e.GenerateWorkerPayout(ctx, worker, start, end, actorID())
				if err != nil {
					return err
				}
				return printJSON(inv)
			})
		},
	}
	cmd.Flags().StringVar(&worker, "worker", "", "worker id")
	cmd.Flags().StringVar(&start, "start", "", "period start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "period end (RFC3339)")
	return cmd
}

func invoiceListCmd() *cobra.Command {
	var f repo.InvoiceFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListInvoices(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Target", "Amount", "Status"})
				for _, it := range items {
					target := ""
					if it.ClientID != nil {
						target = *it.ClientID
					} else if it.WorkerID != nil {
						target = *it.WorkerID
					}
					tw.AppendRow(table.Row{it.ID, it.Kind, target, fmt.Sprintf("%.2f", it.TotalAmount), it.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "client_bill or worker_payout")
	cmd.Flags().StringVar(&f.ClientID, "client", "", "client filter")
	cmd.Flags().StringVar(&f.WorkerID, "worker", "", "worker filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func invoiceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				inv, err := r.GetInvoice(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(inv)
			})
		},
	}
}

func invoiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Advance invoice status (draft -> sent -> paid)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, err := e.SetInvoiceStatus(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printJSON(inv)
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(cmd.Context(), n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{
				Engine:         e,
				BasePath:       basePath,
				RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Fieldline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
