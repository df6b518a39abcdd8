package cli

import (
	"testing"
	"time"

	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/tree"
	"github.com/zalando/go-keyring"
)

func buildTree(t *testing.T) *tree.Tree {
	t.Helper()
	tr := tree.New()
	if _, err := tr.AddFolder(tree.RootID, "f-docs", "Docs", tree.Metadata{}); err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}
	if _, err := tr.AddFolder("f-docs", "f-2024", "2024", tree.Metadata{}); err != nil {
		t.Fatalf("AddFolder failed: %v", err)
	}
	if _, err := tr.AddFile("f-2024", "a", "report.pdf", tree.Metadata{Size: 2048, MD5Checksum: "abc"}); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if _, err := tr.AddFile(tree.RootID, "b", "notes.txt", tree.Metadata{Size: 10}); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	return tr
}

func TestListTree(t *testing.T) {
	tr := buildTree(t)

	tests := []struct {
		name  string
		depth int
		want  []string
	}{
		{"unlimited", 0, []string{"Docs", "Docs/2024", "Docs/2024/report.pdf", "notes.txt"}},
		{"top level", 1, []string{"Docs", "notes.txt"}},
		{"two levels", 2, []string{"Docs", "Docs/2024", "notes.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := listTree(tr, tt.depth)
			if len(entries) != len(tt.want) {
				t.Fatalf("Expected %d entries, got %d: %v", len(tt.want), len(entries), entries)
			}
			for i, p := range tt.want {
				if entries[i].Path != p {
					t.Errorf("Entry %d: expected %s, got %s", i, p, entries[i].Path)
				}
			}
		})
	}
}

func TestListTreeCarriesMetadata(t *testing.T) {
	entries := listTree(buildTree(t), 0)
	for _, e := range entries {
		if e.Path != "Docs/2024/report.pdf" {
			continue
		}
		if e.Kind != "file" || e.Size != 2048 || e.MD5 != "abc" || e.ID != "a" {
			t.Errorf("Expected report metadata, got %+v", e)
		}
		return
	}
	t.Error("Expected report.pdf in the listing")
}

func TestTreeResultMarksFolders(t *testing.T) {
	rows := treeResult{Entries: listTree(buildTree(t), 1)}.AsTableRenderer().Rows()
	if rows[0][0] != "Docs/" || rows[0][1] != "" {
		t.Errorf("Expected folder row without size, got %v", rows[0])
	}
	if rows[1][0] != "notes.txt" || rows[1][1] != "10 B" {
		t.Errorf("Expected file row with size, got %v", rows[1])
	}
}

func TestUsageResultTable(t *testing.T) {
	empty := usageResult{}.AsTableRenderer()
	if len(empty.Rows()) != 0 || empty.EmptyMessage() == "" {
		t.Error("Expected empty usage to render the empty message")
	}

	u := &config.DriveUsage{
		TotalFiles: 1200,
		TotalSize:  4096,
		AudioSize:  1024,
		PhotoSize:  3072,
		QuotaLimit: 1 << 30,
		ComputedAt: time.Now(),
	}
	rows := usageResult{Usage: u}.AsTableRenderer().Rows()
	if len(rows) != 8 {
		t.Fatalf("Expected 8 rows with quota and time, got %d", len(rows))
	}
	if rows[0][1] != "1.0 KiB" {
		t.Errorf("Expected audio 1.0 KiB, got %s", rows[0][1])
	}
	if rows[1][1] != "-" {
		t.Errorf("Expected no movies, got %s", rows[1][1])
	}
	if rows[5][1] != "4.0 KiB in 1,200 files" {
		t.Errorf("Expected total line, got %s", rows[5][1])
	}
}

func TestSettingsOf(t *testing.T) {
	cfg := config.DefaultAccountConfig()
	if err := cfg.Set("conflictPolicy", "local-presides"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	result := settingsOf("user@example.com", "/tmp/gosyncrc", cfg)
	if result.Settings["conflictPolicy"] != "local-presides" {
		t.Errorf("Expected local-presides, got %s", result.Settings["conflictPolicy"])
	}
	rows := result.AsTableRenderer().Rows()
	if len(rows) != len(config.SettingKeys) {
		t.Fatalf("Expected %d rows, got %d", len(config.SettingKeys), len(rows))
	}
	if rows[0][0] != "syncInterval" || rows[0][1] != "600" {
		t.Errorf("Expected syncInterval first, got %v", rows[0])
	}
}

func TestValidateGlobalFlags(t *testing.T) {
	saved := globalFlags
	defer func() { globalFlags = saved }()

	globalFlags.OutputFormat = "table"
	globalFlags.JSON = true
	if err := validateGlobalFlags(); err != nil {
		t.Fatalf("Expected --json to be accepted, got %v", err)
	}
	if globalFlags.OutputFormat != "json" {
		t.Errorf("Expected json output, got %s", globalFlags.OutputFormat)
	}

	globalFlags.JSON = false
	globalFlags.OutputFormat = "yaml"
	if err := validateGlobalFlags(); err == nil {
		t.Error("Expected unknown output format to be rejected")
	}
}

func TestResolveAccount(t *testing.T) {
	saved := globalFlags
	defer func() { globalFlags = saved }()
	globalFlags.ConfigDir = t.TempDir()
	t.Setenv("GOSYNC_CONFIG_DIR", "")
	keyring.MockInit()

	out, _, _ := testOutput("table")
	s, err := openSession(out, false)
	if err != nil {
		t.Fatalf("openSession failed: %v", err)
	}

	if _, err := s.resolveAccount(); err == nil {
		t.Error("Expected an error without accounts")
	}

	for _, account := range []string{"a@example.com", "b@example.com"} {
		if err := s.store.Update(account, func(*config.AccountConfig) {}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	if _, err := s.resolveAccount(); err == nil {
		t.Error("Expected an error with several accounts")
	}

	globalFlags.Account = " B@Example.com "
	got, err := s.resolveAccount()
	if err != nil {
		t.Fatalf("resolveAccount failed: %v", err)
	}
	if got != "b@example.com" {
		t.Errorf("Expected b@example.com, got %s", got)
	}
}
