package attestation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// easABI covers the parts of the EAS contract this package uses
const easABI = `[
	{
		"type": "function",
		"name": "attest",
		"stateMutability": "payable",
		"inputs": [
			{
				"name": "request",
				"type": "tuple",
				"components": [
					{"name": "schema", "type": "bytes32"},
					{
						"name": "data",
						"type": "tuple",
						"components": [
							{"name": "recipient", "type": "address"},
							{"name": "expirationTime", "type": "uint64"},
							{"name": "revocable", "type": "bool"},
							{"name": "refUID", "type": "bytes32"},
							{"name": "data", "type": "bytes"},
							{"name": "value", "type": "uint256"}
						]
					}
				]
			}
		],
		"outputs": [{"name": "", "type": "bytes32"}]
	},
	{
		"type": "function",
		"name": "getAttestation",
		"stateMutability": "view",
		"inputs": [{"name": "uid", "type": "bytes32"}],
		"outputs": [
			{
				"name": "",
				"type": "tuple",
				"components": [
					{"name": "uid", "type": "bytes32"},
					{"name": "schema", "type": "bytes32"},
					{"name": "time", "type": "uint64"},
					{"name": "expirationTime", "type": "uint64"},
					{"name": "revocationTime", "type": "uint64"},
					{"name": "refUID", "type": "bytes32"},
					{"name": "recipient", "type": "address"},
					{"name": "attester", "type": "address"},
					{"name": "revocable", "type": "bool"},
					{"name": "data", "type": "bytes"}
				]
			}
		]
	},
	{
		"type": "event",
		"name": "Attested",
		"anonymous": false,
		"inputs": [
			{"name": "recipient", "type": "address", "indexed": true},
			{"name": "attester", "type": "address", "indexed": true},
			{"name": "uid", "type": "bytes32", "indexed": false},
			{"name": "schemaUID", "type": "bytes32", "indexed": true}
		]
	}
]`

// Request is an EAS AttestationRequest
type Request struct {
	Schema [32]byte
	Data   RequestData
}

// RequestData is an EAS AttestationRequestData
type RequestData struct {
	Recipient      common.Address
	ExpirationTime uint64
	Revocable      bool
	RefUID         [32]byte
	Data           []byte
	Value          *big.Int
}

// contractAttestation mirrors the contract's Attestation tuple field for field
type contractAttestation struct {
	Uid            [32]byte
	Schema         [32]byte
	Time           uint64
	ExpirationTime uint64
	RevocationTime uint64
	RefUID         [32]byte
	Recipient      common.Address
	Attester       common.Address
	Revocable      bool
	Data           []byte
}

func (a contractAttestation) toAttestation() *Attestation {
	return &Attestation{
		UID:            common.Hash(a.Uid).Hex(),
		Schema:         common.Hash(a.Schema).Hex(),
		Time:           a.Time,
		ExpirationTime: a.ExpirationTime,
		RevocationTime: a.RevocationTime,
		RefUID:         common.Hash(a.RefUID).Hex(),
		Recipient:      a.Recipient.Hex(),
		Attester:       a.Attester.Hex(),
		Revocable:      a.Revocable,
		Data:           hexutil.Encode(a.Data),
	}
}

// attestedEvent is the decoded Attested log
type attestedEvent struct {
	Recipient common.Address
	Attester  common.Address
	Uid       [32]byte
	SchemaUID [32]byte
}
