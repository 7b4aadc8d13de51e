package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/normgate/normgate/config"
	"github.com/normgate/normgate/entitle"
)

// EntitlementsCmd groups tenant entitlement operations.
var EntitlementsCmd = &cobra.Command{
	Use:   "entitlements",
	Short: "Manage tenant package entitlements",
	Long: `Manage tenant package entitlements.

Examples:
  normgate entitlements ls --tenant acme
  normgate entitlements grant --tenant acme --package iso_box --trial
  normgate entitlements revoke --tenant acme --package iso_box --reason "customer request"
  normgate entitlements packages`,
}

var entitlementsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List a tenant's entitlements and allowed partitions",
	RunE:  runEntitlementsLs,
}

var entitlementsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Activate a package for a tenant",
	RunE:  runEntitlementsGrant,
}

var entitlementsRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Cancel a tenant's package",
	RunE:  runEntitlementsRevoke,
}

var entitlementsPackagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List the package catalog",
	RunE:  runEntitlementsPackages,
}

var (
	entTenantFlag  string
	entPackageFlag string
	entTrialFlag   bool
	entReasonFlag  string
)

func init() {
	for _, cmd := range []*cobra.Command{entitlementsLsCmd, entitlementsGrantCmd, entitlementsRevokeCmd} {
		cmd.Flags().StringVar(&entTenantFlag, "tenant", "", "Tenant ID (required)")
		cmd.MarkFlagRequired("tenant")
	}
	entitlementsGrantCmd.Flags().StringVar(&entPackageFlag, "package", "", "Package type (required)")
	entitlementsGrantCmd.Flags().BoolVar(&entTrialFlag, "trial", false, "Start a trial instead of a paid subscription")
	entitlementsGrantCmd.MarkFlagRequired("package")
	entitlementsRevokeCmd.Flags().StringVar(&entPackageFlag, "package", "", "Package type (required)")
	entitlementsRevokeCmd.Flags().StringVar(&entReasonFlag, "reason", "", "Cancellation reason")
	entitlementsRevokeCmd.MarkFlagRequired("package")

	EntitlementsCmd.AddCommand(entitlementsLsCmd)
	EntitlementsCmd.AddCommand(entitlementsGrantCmd)
	EntitlementsCmd.AddCommand(entitlementsRevokeCmd)
	EntitlementsCmd.AddCommand(entitlementsPackagesCmd)
}

func runEntitlementsLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := cmd.Context()
	store := entitle.NewSQLStore(conn)
	entitlements, err := store.ListByTenant(ctx, entTenantFlag)
	if err != nil {
		return err
	}

	if len(entitlements) == 0 {
		pterm.Info.Printf("Tenant %s has no entitlements (free tier)\n", entTenantFlag)
	} else {
		data := pterm.TableData{{"Package", "Status", "Started", "Expires"}}
		for _, e := range entitlements {
			expires := "-"
			if e.TrialEnd != nil {
				expires = e.TrialEnd.Format("2006-01-02")
			} else if e.ExpiresAt != nil {
				expires = e.ExpiresAt.Format("2006-01-02")
			}
			data = append(data, []string{
				string(e.PackageType),
				string(e.Status),
				e.StartedAt.Format("2006-01-02"),
				expires,
			})
		}
		pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	resolver := buildResolver(ctx, cfg, conn)
	pterm.Println()
	pterm.Info.Printf("Allowed partitions: %v\n", resolver.AllowedPartitions(ctx, entTenantFlag))
	return nil
}

func runEntitlementsGrant(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := cmd.Context()
	resolver := buildResolver(ctx, cfg, conn)

	e, err := resolver.Activate(ctx, entTenantFlag, entitle.PackageType(entPackageFlag), entTrialFlag)
	if err != nil {
		return err
	}

	pterm.Success.Printf("Granted %s to %s (status: %s)\n", e.PackageType, e.TenantID, e.Status)
	if e.TrialEnd != nil {
		pterm.Info.Printf("Trial ends %s\n", e.TrialEnd.Format("2006-01-02"))
	}
	return nil
}

func runEntitlementsRevoke(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := cmd.Context()
	resolver := buildResolver(ctx, cfg, conn)

	e, err := resolver.Deactivate(ctx, entTenantFlag, entitle.PackageType(entPackageFlag), entReasonFlag)
	if err != nil {
		return err
	}

	pterm.Success.Printf("Cancelled %s for %s\n", e.PackageType, e.TenantID)
	return nil
}

func runEntitlementsPackages(cmd *cobra.Command, args []string) error {
	data := pterm.TableData{{"Type", "Name", "Price/mo", "Partitions"}}
	for _, t := range entitle.PackageTypes() {
		pkg, _ := entitle.LookupPackage(t)
		grant := pterm.Sprintf("%d", len(pkg.Partitions))
		if pkg.AllPartitions {
			grant = "all"
		}
		data = append(data, []string{
			string(pkg.Type),
			pkg.Name,
			pterm.Sprintf("$%.2f", float64(pkg.PriceCents)/100),
			grant,
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	return nil
}
