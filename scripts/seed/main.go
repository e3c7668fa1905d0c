// Seeds a development database with a demo tenant, two registered cloud
// accounts and a plausible EBS inventory so the API and reports have
// something to serve. Safe to re-run: the tenant and accounts are reused
// when they already exist and volumes upsert on their AWS identifiers.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ebsight/ebsight/internal/config"
	awsconn "github.com/ebsight/ebsight/internal/connectors/aws"
	"github.com/ebsight/ebsight/internal/externalid"
	"github.com/ebsight/ebsight/internal/models"
	"github.com/ebsight/ebsight/internal/pricing"
	"github.com/ebsight/ebsight/internal/store"
)

var (
	azSuffixes  = []string{"a", "b", "c"}
	volumeTypes = []string{"gp3", "gp3", "gp3", "gp2", "gp2", "io1", "st1"}
	volumeSizes = []int32{8, 20, 50, 100, 200, 500, 1000}
	devices     = []string{"/dev/xvda", "/dev/xvdf", "/dev/xvdg", "/dev/sdb"}
	teams       = []string{"payments", "search", "platform", "data", "web"}
)

var seedAccounts = []struct {
	alias        string
	awsAccountID string
	regions      []string
}{
	{"production", "123456789012", []string{"us-east-1", "eu-west-1"}},
	{"staging", "210987654321", []string{"us-east-1"}},
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	tenantID := os.Getenv("SEED_TENANT")
	if tenantID == "" {
		tenantID = "acme"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		fmt.Printf("Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	gen, err := externalid.NewGenerator(cfg.Security.MasterSecret)
	if err != nil {
		fmt.Printf("Error creating external id generator: %v\n", err)
		os.Exit(1)
	}

	table := pricing.NewTable(cfg.Pricing.Version, cfg.Pricing.Rates)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ctx := context.Background()

	tenant, err := st.GetTenant(ctx, tenantID)
	if err != nil {
		fmt.Printf("Error looking up tenant: %v\n", err)
		os.Exit(1)
	}
	if tenant == nil {
		if err := st.CreateTenant(ctx, &models.Tenant{ID: tenantID, Name: "Acme Corporation"}); err != nil {
			fmt.Printf("Error creating tenant: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created tenant %q\n", tenantID)
	} else {
		fmt.Printf("Tenant %q already exists, reusing\n", tenantID)
	}

	for _, sa := range seedAccounts {
		account, err := st.GetCloudAccountByAccountID(ctx, tenantID, sa.awsAccountID)
		if err != nil {
			fmt.Printf("Error looking up account %s: %v\n", sa.awsAccountID, err)
			os.Exit(1)
		}
		if account == nil {
			account = &models.CloudAccount{
				TenantID:     tenantID,
				Alias:        sa.alias,
				AWSAccountID: sa.awsAccountID,
				RoleARN:      awsconn.RoleARN(sa.awsAccountID, cfg.AWS.ScannerRoleName),
				ExternalID:   gen.Generate(tenantID, sa.awsAccountID),
				Regions:      sa.regions,
			}
			if err := st.RegisterCloudAccount(ctx, account, "seed-script"); err != nil {
				fmt.Printf("Error registering account %s: %v\n", sa.awsAccountID, err)
				os.Exit(1)
			}
			fmt.Printf("Registered account %q (%s)\n", sa.alias, sa.awsAccountID)
		} else {
			fmt.Printf("Account %q (%s) already exists, reusing\n", account.Alias, sa.awsAccountID)
		}

		totalVolumes := 0
		for _, region := range account.Regions {
			volumes, snapshots := generateRegion(rng, table, account, region)
			if err := st.PersistScanResults(ctx, tenantID, volumes, snapshots); err != nil {
				fmt.Printf("Error persisting %s inventory: %v\n", region, err)
				os.Exit(1)
			}
			totalVolumes += len(volumes)
			fmt.Printf("  %s: %d volumes, %d snapshots\n", region, len(volumes), len(snapshots))
		}

		// Leave a completed scan behind so the scan history is not empty.
		rec := &models.ScanRecord{
			ScanID:         uuid.New(),
			TenantID:       tenantID,
			CloudAccountID: account.ID,
			Status:         models.ScanStatusQueued,
		}
		if err := st.CreateScanRecord(ctx, rec); err != nil {
			fmt.Printf("Error creating scan record: %v\n", err)
			os.Exit(1)
		}
		claimed, err := st.ClaimScanInProgress(ctx, tenantID, rec.ScanID)
		if err != nil || !claimed {
			fmt.Printf("Error claiming scan record: claimed=%v err=%v\n", claimed, err)
			os.Exit(1)
		}
		if err := st.CompleteScanRecord(ctx, tenantID, rec.ScanID, totalVolumes, nil); err != nil {
			fmt.Printf("Error completing scan record: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("\nSeed complete.")
}

// generateRegion fabricates one region's inventory for an account: volumes
// with a realistic mix of types, attachment and encryption, and snapshots
// for roughly half of them.
func generateRegion(rng *rand.Rand, table *pricing.Table, account *models.CloudAccount, region string) ([]models.Volume, []models.Snapshot) {
	count := 8 + rng.Intn(8)
	volumes := make([]models.Volume, 0, count)
	var snapshots []models.Snapshot

	for i := 0; i < count; i++ {
		v := models.Volume{
			TenantID:         account.TenantID,
			CloudAccountID:   account.ID,
			VolumeID:         "vol-0" + randomHex(rng, 16),
			Region:           region,
			AvailabilityZone: region + azSuffixes[rng.Intn(len(azSuffixes))],
			SizeGB:           volumeSizes[rng.Intn(len(volumeSizes))],
			VolumeType:       volumeTypes[rng.Intn(len(volumeTypes))],
			State:            models.VolumeStateAvailable,
			Tags:             models.JSONB{"team": teams[rng.Intn(len(teams))]},
		}

		var iops int32
		if v.VolumeType == "io1" {
			iops = int32(3000 + rng.Intn(10)*1000)
			v.IOPS = &iops
		}
		if rng.Intn(10) < 6 {
			v.Encrypted = true
			key := fmt.Sprintf("arn:aws:kms:%s:%s:key/%s", region, account.AWSAccountID, uuid.NewString())
			v.KMSKeyID = &key
		}
		if rng.Intn(10) < 7 {
			v.State = models.VolumeStateInUse
			instance := "i-0" + randomHex(rng, 16)
			device := devices[rng.Intn(len(devices))]
			attached := time.Now().AddDate(0, 0, -rng.Intn(90))
			v.InstanceID = &instance
			v.AttachmentDevice = &device
			v.AttachedAt = &attached
		}
		created := time.Now().AddDate(0, 0, -(rng.Intn(365) + 1))
		v.VolumeCreatedAt = &created
		v.CostPerMonth = table.CostPerMonth(v.VolumeType, v.SizeGB, iops)
		volumes = append(volumes, v)

		if rng.Intn(2) == 0 {
			taken := time.Now().AddDate(0, 0, -rng.Intn(30))
			snapshots = append(snapshots, models.Snapshot{
				TenantID:       account.TenantID,
				CloudAccountID: account.ID,
				SnapshotID:     "snap-0" + randomHex(rng, 16),
				VolumeID:       v.VolumeID,
				Region:         region,
				State:          "completed",
				Progress:       "100%",
				VolumeSizeGB:   v.SizeGB,
				Encrypted:      v.Encrypted,
				KMSKeyID:       v.KMSKeyID,
				Description:    "nightly backup",
				SnapshotTime:   &taken,
				Tags:           v.Tags,
			})
		}
	}
	return volumes, snapshots
}

func randomHex(rng *rand.Rand, n int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, n)
	for i := range b {
		b[i] = digits[rng.Intn(len(digits))]
	}
	return string(b)
}
