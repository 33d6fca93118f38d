package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCatalog(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if c.Len() != 10 {
		t.Errorf("Len() = %d, want 10", c.Len())
	}

	testCases := []struct {
		name     string
		program  string
		elevated bool
		blocking bool
		deps     []string
	}{
		{"dirb", "dirb", false, false, []string{"dirb"}},
		{"crunch", "crunch", false, false, []string{"crunch"}},
		{"tiger", "tiger", true, false, []string{"tiger"}},
		{"traceroute", "traceroute", false, true, []string{"traceroute"}},
		{"traceroute-icmp", "traceroute", false, true, []string{"traceroute"}},
		{"traceroute-tcp", "traceroute", false, true, []string{"traceroute"}},
		{"traceroute-udp", "traceroute", false, true, []string{"traceroute"}},
		{"wpscan", "wpscan", false, false, []string{"wpscan"}},
		{"smb-enum", "nmap", false, false, []string{"nmap", "smbclient"}},
		{"smbghost", "python3", false, false, []string{"python3"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tool, err := c.Lookup(tc.name)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if tool.Program != tc.program {
				t.Errorf("Program = %q, want %q", tool.Program, tc.program)
			}
			if tool.Elevated != tc.elevated {
				t.Errorf("Elevated = %v, want %v", tool.Elevated, tc.elevated)
			}
			if tool.Blocking != tc.blocking {
				t.Errorf("Blocking = %v, want %v", tool.Blocking, tc.blocking)
			}
			if len(tool.Dependencies) != len(tc.deps) {
				t.Fatalf("Dependencies = %v, want %v", tool.Dependencies, tc.deps)
			}
			for i := range tc.deps {
				if tool.Dependencies[i] != tc.deps[i] {
					t.Errorf("Dependencies = %v, want %v", tool.Dependencies, tc.deps)
				}
			}
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Lookup("metasploit"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Lookup() error = %v, want ErrUnknownTool", err)
	}
}

func TestDefault_TraceroutePresets(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name string
		want string
	}{
		{"traceroute", "example.org"},
		{"traceroute-icmp", "-I example.org"},
		{"traceroute-tcp", "-T example.org"},
		{"traceroute-udp", "-U example.org"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tool, err := c.Lookup(tc.name)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			got := strings.Join(tool.Command([]string{"example.org"}).Args(), " ")
			if got != tc.want {
				t.Errorf("Args() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTool_Command(t *testing.T) {
	tool := Tool{Name: "smb-enum", Program: "nmap", Args: []string{"--script", "x"}}
	cmd := tool.Command([]string{"-p", "445", "10.0.0.1"})

	if cmd.Program() != "nmap" {
		t.Errorf("Program() = %q", cmd.Program())
	}
	want := []string{"--script", "x", "-p", "445", "10.0.0.1"}
	got := cmd.Args()
	if len(got) != len(want) {
		t.Fatalf("Args() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Args() = %v, want %v", got, want)
		}
	}
	if cmd.Elevated() {
		t.Error("plain tool should not be elevated")
	}

	// Building a command must not alias the tool's own args
	tool.Command([]string{"a"})
	if len(tool.Args) != 2 {
		t.Errorf("tool.Args mutated: %v", tool.Args)
	}

	elevated := Tool{Name: "tiger", Program: "tiger", Elevated: true}
	if !elevated.Command([]string{"-l", "/tmp/r"}).Elevated() {
		t.Error("elevated tool should build an elevated command")
	}
}

func TestLoad_Formats(t *testing.T) {
	testCases := []struct {
		name string
		file string
		body string
	}{
		{
			name: "toml",
			file: "tools.toml",
			body: `
[[tool]]
name = "ping"
program = "ping"
args = ["-c", "3"]
`,
		},
		{
			name: "yaml",
			file: "tools.yaml",
			body: `
tools:
  - name: ping
    program: ping
    args: ["-c", "3"]
`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Load(writeCatalog(t, tc.file, tc.body))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tool, err := c.Lookup("ping")
			if err != nil {
				t.Fatal(err)
			}
			if len(tool.Args) != 2 || tool.Args[1] != "3" {
				t.Errorf("Args = %v", tool.Args)
			}
			// Program is the dependency when none are listed
			if len(tool.Dependencies) != 1 || tool.Dependencies[0] != "ping" {
				t.Errorf("Dependencies = %v, want [ping]", tool.Dependencies)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name string
		file string
		body string
	}{
		{"bad_extension", "tools.json", `{}`},
		{"missing_name", "tools.toml", "[[tool]]\nprogram = \"x\"\n"},
		{"missing_program", "tools.toml", "[[tool]]\nname = \"x\"\n"},
		{"duplicate", "tools.yml", "tools:\n  - {name: a, program: a}\n  - {name: a, program: b}\n"},
		{"bad_yaml", "tools.yaml", "tools: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeCatalog(t, tc.file, tc.body)); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	c, err := LoadOrDefault("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 10 {
		t.Errorf("empty path should load the built-in catalog, got %d tools", c.Len())
	}

	tools := c.Tools()
	for i := 1; i < len(tools); i++ {
		if tools[i-1].Name > tools[i].Name {
			t.Error("Tools() should be sorted by name")
		}
	}
}
