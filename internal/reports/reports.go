// Package reports renders tenant-facing exports of the discovered
// inventory.
package reports

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebsight/ebsight/internal/models"
	"github.com/ebsight/ebsight/internal/store"
)

// Store is the inventory surface the generator reads. *store.Store
// satisfies it.
type Store interface {
	GetVolumeSummary(ctx context.Context, tenantID string) (*store.VolumeSummary, error)
	ListVolumes(ctx context.Context, tenantID string, filters store.VolumeFilters) ([]models.Volume, error)
	ListCloudAccounts(ctx context.Context, tenantID string, includeInactive bool) ([]models.CloudAccount, error)
}

const topVolumeCount = 15

type Generator struct {
	store Store
}

func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// InventoryPDF renders one tenant's EBS inventory: headline counts,
// encryption and attachment breakdowns, the most expensive volumes, and the
// registered accounts.
func (g *Generator) InventoryPDF(ctx context.Context, tenantID string) ([]byte, error) {
	summary, err := g.store.GetVolumeSummary(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("loading volume summary: %w", err)
	}

	accounts, err := g.store.ListCloudAccounts(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}

	top, err := g.store.ListVolumes(ctx, tenantID, store.VolumeFilters{
		SortByCost: true,
		Limit:      topVolumeCount,
	})
	if err != nil {
		return nil, fmt.Errorf("loading top volumes: %w", err)
	}

	b := newPDFBuilder("EBS Inventory Report")

	b.addSection("Inventory Overview")
	b.addKeyValues([]keyValue{
		{"Registered accounts", fmt.Sprintf("%d", summary.AccountCount)},
		{"Volumes", fmt.Sprintf("%d", summary.TotalVolumes)},
		{"Snapshots", fmt.Sprintf("%d", summary.SnapshotCount)},
		{"Total volume size", fmt.Sprintf("%d GB", summary.TotalSizeGB)},
		{"Estimated monthly cost", fmt.Sprintf("$%.2f", summary.TotalCostPerMonth)},
	})

	if summary.TotalVolumes == 0 {
		b.addParagraph("No volumes discovered yet. Trigger a scan or wait for the next scheduled sweep.")
		return b.output()
	}

	b.addSection("Encryption")
	b.addBarChart([]chartEntry{
		{"Encrypted", summary.TotalVolumes - summary.UnencryptedCount},
		{"Unencrypted", summary.UnencryptedCount},
	})

	b.addSection("Attachment")
	b.addBarChart([]chartEntry{
		{"Attached", summary.TotalVolumes - summary.UnattachedCount},
		{"Unattached", summary.UnattachedCount},
	})

	if len(top) > 0 {
		b.addSection("Top Volumes by Monthly Cost")
		rows := make([][]string, 0, len(top))
		for _, v := range top {
			rows = append(rows, []string{
				v.VolumeID,
				v.Region,
				v.VolumeType,
				fmt.Sprintf("%d GB", v.SizeGB),
				fmt.Sprintf("$%.2f", v.CostPerMonth),
			})
		}
		b.addTable([]string{"Volume", "Region", "Type", "Size", "Monthly Cost"}, rows)
	}

	if len(accounts) > 0 {
		b.addSection("Registered Accounts")
		rows := make([][]string, 0, len(accounts))
		for _, a := range accounts {
			status := "active"
			if !a.Active {
				status = "inactive"
			}
			rows = append(rows, []string{
				a.Alias,
				a.AWSAccountID,
				strings.Join(a.Regions, " "),
				status,
			})
		}
		b.addTable([]string{"Alias", "AWS Account", "Regions", "Status"}, rows)
	}

	return b.output()
}
