package qpconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		role  Role
	}{
		{input: "QP_MINER", role: RoleMiner},
		{input: "QP_FINALIZER", role: RoleFinalizer},
		{input: "qp_miner", role: RoleNone},
		{input: "", role: RoleNone},
		{input: "VALIDATOR", role: RoleNone},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.role, ParseRole(tc.input))
			assert.Equal(t, tc.role, RoleFromBytes([]byte(tc.input)))
		})
	}
	assert.Equal(t, "QP_FINALIZER", RoleFinalizer.String())
}

func readConfig(t *testing.T, path string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(readConfig(t, "testdata/relay.json"))
	require.NoError(t, err)

	require.Len(t, cfg.Networks, 2)
	assert.Equal(t, "https://data-seed-prebsc-1-s1.binance.org:8545", cfg.Networks[0].URL)
	assert.Equal(t, common.HexToAddress("0x7B0a30023A2dDEf2a859353E804006b9b0Ec6BF5"), cfg.Networks[0].GatewayContract)
	assert.Equal(t, uint64(97), cfg.Networks[0].ID)
	assert.Equal(t, []Pair{{Remote: 97, Local: 26100}, {Remote: 26100, Local: 97}}, cfg.Pairs)
	assert.Len(t, cfg.SignerPublicKey, 33)
	assert.Equal(t, RoleMiner, cfg.Role)

	n, ok := cfg.Network(26100)
	assert.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:9933", n.URL)
	_, ok = cfg.Network(5)
	assert.False(t, ok)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(readConfig(t, "testdata/relay.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []Pair{{Remote: 1, Local: 2}}, cfg.Pairs)
	assert.Nil(t, cfg.SignerPublicKey)
	assert.Equal(t, RoleFinalizer, cfg.Role)
}

func TestLoadInvalid(t *testing.T) {
	network := func(url, gw string, id int) string {
		return fmt.Sprintf(`{"url":%q,"gateway_contract_address":%q,"id":%d}`, url, gw, id)
	}
	good1 := network("http://a", "0x0000000000000000000000000000000000000001", 1)
	good2 := network("http://b", "0x0000000000000000000000000000000000000002", 2)

	tests := []struct {
		label string
		body  string
	}{
		{label: "MissingSection", body: `{"interval":"1s"}`},
		{label: "NoURL", body: `{"networks":{"network_vec":[` + network("", "0x0000000000000000000000000000000000000001", 1) + `]}}`},
		{label: "BadScheme", body: `{"networks":{"network_vec":[` + network("ws://a", "0x0000000000000000000000000000000000000001", 1) + `]}}`},
		{label: "BadGateway", body: `{"networks":{"network_vec":[` + network("http://a", "0x01", 1) + `]}}`},
		{label: "DuplicateID", body: `{"networks":{"network_vec":[` + good1 + `,` + good1 + `]}}`},
		{label: "PairArity", body: `{"networks":{"network_vec":[` + good1 + `,` + good2 + `],"pair_vec":[[1,2,3]]}}`},
		{label: "SelfPair", body: `{"networks":{"network_vec":[` + good1 + `],"pair_vec":[[1,1]]}}`},
		{label: "UnknownChain", body: `{"networks":{"network_vec":[` + good1 + `,` + good2 + `],"pair_vec":[[1,3]]}}`},
		{label: "BadPublicKey", body: `{"networks":{"signer_public_key":"0xzz"}}`},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			v := viper.New()
			v.SetConfigType("json")
			require.NoError(t, v.ReadConfig(strings.NewReader(tc.body)))
			_, err := Load(v)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func newTestRootCommand(configPath string) *cobra.Command {
	var interval *string

	testConfig := ConfigOptions{
		FilePath:  configPath,
		EnvPrefix: "TEST_QPRELAYD",
	}

	rootCmd := &cobra.Command{
		Use:   "config_file_reader_test",
		Short: "Unit test to test config file reader",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := InitFileConfig(cmd, testConfig)
			return err
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "interval:", *interval)
		},
	}

	interval = rootCmd.Flags().String("interval", "12s", "Relay round interval")

	return rootCmd
}

func TestInitFileConfig(t *testing.T) {
	tests := []struct {
		label string
		path  string
		args  []string
		env   string
		want  string
	}{
		{label: "Default", want: "interval: 12s\n"},
		{label: "ConfigFile", path: "testdata/relay.json", want: "interval: 30s\n"},
		{label: "Env", path: "testdata/relay.json", env: "45s", want: "interval: 45s\n"},
		{label: "Flag", path: "testdata/relay.json", env: "45s", args: []string{"--interval", "1m"}, want: "interval: 1m\n"},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			if tc.env != "" {
				t.Setenv("TEST_QPRELAYD_INTERVAL", tc.env)
			}
			cmd := newTestRootCommand(tc.path)
			output := &bytes.Buffer{}
			cmd.SetOut(output)
			args := tc.args
			if args == nil {
				args = []string{}
			}
			cmd.SetArgs(args)
			require.NoError(t, cmd.Execute())
			assert.Equal(t, tc.want, output.String())
		})
	}
}

func TestInitFileConfigMissingFile(t *testing.T) {
	cmd := newTestRootCommand("testdata/does-not-exist.yaml")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestInitFileConfigBadFlagValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rpcBurst":"many"}`), 0600))

	cmd := &cobra.Command{
		Use: "bad_value_test",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := InitFileConfig(cmd, ConfigOptions{FilePath: path, EnvPrefix: "TEST_QPRELAYD"})
			return err
		},
	}
	cmd.Flags().Int("rpcBurst", 1, "Burst")
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.ErrorContains(t, cmd.Execute(), "invalid value for rpcBurst")
}
