package attestation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sigweihq/chainsync/pkg/constants"
	"github.com/sigweihq/chainsync/pkg/receipt"
	"github.com/sigweihq/chainsync/pkg/utils"
)

// ErrAttestationNotFound is returned when the indexer knows no attestation for a uid
var ErrAttestationNotFound = errors.New("attestation not found")

// IndexerURLs are the public EAS GraphQL endpoints, keyed by network name
var IndexerURLs = map[string]string{
	constants.NetworkEthereum:    "https://easscan.org/graphql",
	constants.NetworkSepolia:     "https://sepolia.easscan.org/graphql",
	constants.NetworkBase:        "https://base.easscan.org/graphql",
	constants.NetworkBaseSepolia: "https://base-sepolia.easscan.org/graphql",
	constants.NetworkOptimism:    "https://optimism.easscan.org/graphql",
	constants.NetworkArbitrum:    "https://arbitrum.easscan.org/graphql",
	constants.NetworkCelo:        "https://celo.easscan.org/graphql",
	constants.NetworkLinea:       "https://linea.easscan.org/graphql",
	constants.NetworkScroll:      "https://scroll.easscan.org/graphql",
}

const attestationQuery = `query Attestation($id: String!) {
  attestation(where: { id: $id }) {
    id
    schemaId
    time
    expirationTime
    revocationTime
    refUID
    recipient
    attester
    revocable
    data
    txid
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type indexedAttestation struct {
	ID             string `json:"id"`
	SchemaID       string `json:"schemaId"`
	Time           uint64 `json:"time"`
	ExpirationTime uint64 `json:"expirationTime"`
	RevocationTime uint64 `json:"revocationTime"`
	RefUID         string `json:"refUID"`
	Recipient      string `json:"recipient"`
	Attester       string `json:"attester"`
	Revocable      bool   `json:"revocable"`
	Data           string `json:"data"`
	TxID           string `json:"txid"`
}

type attestationResponse struct {
	Data struct {
		Attestation *indexedAttestation `json:"attestation"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// IndexerClient reads attestations from an EAS GraphQL indexer
type IndexerClient struct {
	url        string
	httpClient *http.Client
	headers    map[string]string
}

// Verify IndexerClient can enrich receipts
var _ receipt.AttestationReader = (*IndexerClient)(nil)

// NewIndexerClient creates a client for the GraphQL endpoint at url
func NewIndexerClient(url string, httpClient *http.Client) (*IndexerClient, error) {
	if err := utils.ValidateEndpointURL(url); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = utils.CreateHTTPClientWithTimeouts()
	}
	return &IndexerClient{url: url, httpClient: httpClient}, nil
}

// NewIndexerClientForNetwork uses the public indexer of a network
func NewIndexerClientForNetwork(network string, httpClient *http.Client) (*IndexerClient, error) {
	url, ok := IndexerURLs[network]
	if !ok {
		return nil, fmt.Errorf("no EAS indexer known for network %s", network)
	}
	return NewIndexerClient(url, httpClient)
}

// SetHeader adds a header (e.g. an API key) to every request
func (c *IndexerClient) SetHeader(key, value string) {
	if c.headers == nil {
		c.headers = make(map[string]string)
	}
	c.headers[key] = value
}

// GetAttestation implements receipt.AttestationReader
func (c *IndexerClient) GetAttestation(ctx context.Context, uid string) (any, error) {
	return c.Attestation(ctx, uid)
}

// Attestation looks up an attestation by uid
func (c *IndexerClient) Attestation(ctx context.Context, uid string) (*Attestation, error) {
	req := graphQLRequest{
		Query:     attestationQuery,
		Variables: map[string]any{"id": uid},
	}

	resp, err := utils.MakeJSONRequest[attestationResponse](ctx, c.httpClient, http.MethodPost, c.url, req, c.headers, "graphql")
	if err != nil {
		return nil, err
	}

	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			messages = append(messages, e.Message)
		}
		return nil, fmt.Errorf("graphql query failed: %s", strings.Join(messages, "; "))
	}

	a := resp.Data.Attestation
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAttestationNotFound, uid)
	}

	return &Attestation{
		UID:            a.ID,
		Schema:         a.SchemaID,
		Time:           a.Time,
		ExpirationTime: a.ExpirationTime,
		RevocationTime: a.RevocationTime,
		RefUID:         a.RefUID,
		Recipient:      a.Recipient,
		Attester:       a.Attester,
		Revocable:      a.Revocable,
		Data:           a.Data,
		TxHash:         a.TxID,
	}, nil
}
