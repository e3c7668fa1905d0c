package pricing

import "testing"

func TestCostPerMonth(t *testing.T) {
	table := Default()

	tests := []struct {
		name       string
		volumeType string
		sizeGB     int32
		iops       int32
		want       float64
	}{
		{
			name:       "gp3 at free iops threshold has no overage",
			volumeType: "gp3",
			sizeGB:     100,
			iops:       3000,
			want:       8.00,
		},
		{
			name:       "gp3 above threshold pays for the excess only",
			volumeType: "gp3",
			sizeGB:     100,
			iops:       3500,
			want:       10.50,
		},
		{
			name:       "gp3 below threshold",
			volumeType: "gp3",
			sizeGB:     10,
			iops:       0,
			want:       0.80,
		},
		{
			name:       "gp2 is flat rate",
			volumeType: "gp2",
			sizeGB:     500,
			iops:       1500,
			want:       50.00,
		},
		{
			name:       "io1 charges every provisioned iops",
			volumeType: "io1",
			sizeGB:     100,
			iops:       5000,
			want:       337.50,
		},
		{
			name:       "io2 charges every provisioned iops",
			volumeType: "io2",
			sizeGB:     200,
			iops:       1000,
			want:       90.00,
		},
		{
			name:       "st1 is flat rate",
			volumeType: "st1",
			sizeGB:     1000,
			iops:       500,
			want:       45.00,
		},
		{
			name:       "sc1 is flat rate",
			volumeType: "sc1",
			sizeGB:     1000,
			iops:       0,
			want:       15.00,
		},
		{
			name:       "unrecognized type costs zero",
			volumeType: "standard",
			sizeGB:     100,
			iops:       100,
			want:       0,
		},
		{
			name:       "empty type costs zero",
			volumeType: "",
			sizeGB:     100,
			iops:       0,
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.CostPerMonth(tt.volumeType, tt.sizeGB, tt.iops)
			if got != tt.want {
				t.Errorf("CostPerMonth(%q, %d, %d) = %v, want %v",
					tt.volumeType, tt.sizeGB, tt.iops, got, tt.want)
			}
		})
	}
}

func TestNewTableOverrides(t *testing.T) {
	table := NewTable("2025-07", map[string]Rate{
		"gp3": {GBMonth: 0.09, IOPSMonth: 0.006, FreeIOPS: 4000},
		"x9":  {GBMonth: 1.00},
	})

	if table.Version() != "2025-07" {
		t.Errorf("Version() = %q, want %q", table.Version(), "2025-07")
	}

	if got := table.CostPerMonth("gp3", 100, 4500); got != 12.00 {
		t.Errorf("overridden gp3 cost = %v, want 12.00", got)
	}

	// Types without an override keep their default rate.
	if got := table.CostPerMonth("gp2", 100, 0); got != 10.00 {
		t.Errorf("gp2 cost = %v, want 10.00", got)
	}

	if got := table.CostPerMonth("x9", 3, 0); got != 3.00 {
		t.Errorf("added type cost = %v, want 3.00", got)
	}
}

func TestDefaultVersionTag(t *testing.T) {
	if got := Default().Version(); got != DefaultVersion {
		t.Errorf("Default().Version() = %q, want %q", got, DefaultVersion)
	}

	if _, ok := Default().Rate("gp3"); !ok {
		t.Error("expected a default rate for gp3")
	}
	if _, ok := Default().Rate("nvme99"); ok {
		t.Error("did not expect a rate for an unknown type")
	}
}
