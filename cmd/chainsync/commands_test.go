package main

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSchema    = "0xf58b8b212ef75ee8cd7e8d803c37c03e0519890502d5e99ee2412aae1456cafe"
	testRecipient = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
)

func TestParseChainArg(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "8453", want: 8453},
		{in: "0x2105", want: 8453},
		{in: "eip155:11155111", want: 11155111},
		{in: "base", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseChainArg(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildRequest(t *testing.T) {
	req, err := buildRequest(testSchema, testRecipient, "0xcafe", "", false)
	require.NoError(t, err)

	assert.Equal(t, common.HexToHash(testSchema), common.Hash(req.Schema))
	assert.Equal(t, common.HexToAddress(testRecipient), req.Data.Recipient)
	assert.Equal(t, []byte{0xca, 0xfe}, req.Data.Data)
	assert.False(t, req.Data.Revocable)
	assert.Equal(t, common.Hash{}, common.Hash(req.Data.RefUID))

	tests := []struct {
		name      string
		schema    string
		recipient string
		data      string
		ref       string
	}{
		{name: "short schema", schema: "0x1234", data: "0x"},
		{name: "bad recipient", schema: testSchema, recipient: "0xnothex", data: "0x"},
		{name: "bad ref", schema: testSchema, data: "0x", ref: "0x01"},
		{name: "data without prefix", schema: testSchema, data: "cafe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildRequest(tt.schema, tt.recipient, tt.data, tt.ref, true)
			assert.Error(t, err)
		})
	}
}

func TestChainsCommand(t *testing.T) {
	var out bytes.Buffer
	a := &app{}
	defer a.close()
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetArgs([]string{"chains"})

	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "CHAIN ID")
	assert.Contains(t, out.String(), "11155111")
	assert.Contains(t, out.String(), "0xaa36a7")
	assert.Contains(t, out.String(), "sepolia")
}

func TestSwitchCommand_NoWallet(t *testing.T) {
	var out bytes.Buffer
	a := &app{}
	defer a.close()
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetArgs([]string{"switch", "11155111"})

	err := root.Execute()
	require.Error(t, err)

	// no bridge configured, so the diagnostic payload names the target network
	assert.Contains(t, out.String(), "userMessage")
	assert.Contains(t, out.String(), "11155111")
}

func TestExecute_ClosesAfterFailedCommand(t *testing.T) {
	t.Setenv("CHAINSYNC_METRICS_ENABLED", "true")
	t.Setenv("CHAINSYNC_METRICS_ADDR", "127.0.0.1:0")

	a := &app{}
	err := execute(context.Background(), a, []string{"switch", "11155111"})
	require.Error(t, err)

	// a shut down server refuses to start again
	require.NotNil(t, a.metrics)
	assert.ErrorIs(t, a.metrics.ListenAndServe(), http.ErrServerClosed)
}
