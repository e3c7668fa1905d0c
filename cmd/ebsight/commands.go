package main

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ebsight/ebsight/internal/config"
	"github.com/ebsight/ebsight/internal/externalid"
	"github.com/ebsight/ebsight/internal/models"
	"github.com/ebsight/ebsight/internal/queue"
	"github.com/ebsight/ebsight/internal/store"
)

var awsAccountIDPattern = regexp.MustCompile(`^\d{12}$`)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ebsight",
		Short: "EBSight operations CLI",
	}
	root.PersistentFlags().String("config", "config.yaml", "Path to configuration file")
	root.AddCommand(newExternalIDCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newAccountsCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return st, nil
}

// newExternalIDCmd computes the external id a customer must configure on
// their role's trust policy. Used during onboarding support; the value is
// deterministic, so support and the registration API always agree.
func newExternalIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "external-id <tenant-id> <aws-account-id>",
		Short: "Compute the external id for a tenant and AWS account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, awsAccountID := args[0], args[1]
			if !awsAccountIDPattern.MatchString(awsAccountID) {
				return fmt.Errorf("aws account id must be 12 digits, got %q", awsAccountID)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			gen, err := externalid.NewGenerator(cfg.Security.MasterSecret)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), gen.Generate(tenantID, awsAccountID))
			return nil
		},
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <tenant-id> <aws-account-id>",
		Short: "Queue a scan for a registered account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, awsAccountID := args[0], args[1]
			ctx := cmd.Context()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			q, err := queue.New(queue.Config{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				return fmt.Errorf("connecting to queue: %w", err)
			}
			defer q.Close()

			account, err := st.GetCloudAccountByAccountID(ctx, tenantID, awsAccountID)
			if err != nil {
				return fmt.Errorf("looking up account: %w", err)
			}
			if account == nil {
				return fmt.Errorf("account %s is not registered for tenant %s", awsAccountID, tenantID)
			}
			if !account.Active {
				return fmt.Errorf("account %s is deactivated", awsAccountID)
			}

			rec := &models.ScanRecord{
				ScanID:         uuid.New(),
				TenantID:       tenantID,
				CloudAccountID: account.ID,
				Status:         models.ScanStatusQueued,
			}
			if err := st.CreateScanRecord(ctx, rec); err != nil {
				return fmt.Errorf("creating scan record: %w", err)
			}

			req := &models.ScanRequest{
				ScanID:     rec.ScanID.String(),
				TenantID:   tenantID,
				AccountID:  account.AWSAccountID,
				RoleARN:    account.RoleARN,
				ExternalID: account.ExternalID,
				Regions:    account.Regions,
			}
			if err := q.Enqueue(ctx, req, 1); err != nil {
				return fmt.Errorf("enqueueing scan: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scan %s queued for account %s\n", rec.ScanID, awsAccountID)
			return nil
		},
	}
}

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect registered cloud accounts",
	}
	cmd.AddCommand(newAccountsListCmd())
	return cmd
}

func newAccountsListCmd() *cobra.Command {
	var (
		tenantID string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's registered accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			accounts, err := st.ListCloudAccounts(cmd.Context(), tenantID, all)
			if err != nil {
				return fmt.Errorf("listing accounts: %w", err)
			}

			printAccounts(cmd.OutOrStdout(), accounts)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant whose accounts to list")
	cmd.Flags().BoolVar(&all, "all", false, "Include deactivated accounts")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func printAccounts(w io.Writer, accounts []models.CloudAccount) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No accounts.")
		return
	}

	fmt.Fprintf(w, "%-20s  %-14s  %-8s  %-24s  %s\n", "ALIAS", "AWS ACCOUNT", "ACTIVE", "REGIONS", "EXTERNAL ID")
	fmt.Fprintln(w, strings.Repeat("-", 104))
	for _, a := range accounts {
		fmt.Fprintf(w, "%-20s  %-14s  %-8t  %-24s  %s\n",
			a.Alias,
			a.AWSAccountID,
			a.Active,
			strings.Join(a.Regions, ","),
			a.ExternalID,
		)
	}
}
