package wal_manager

import (
	"encoding/json"
	"fmt"
)

type OperationType byte

const (
	OpInsert OperationType = 1
	OpUpdate OperationType = 2
	OpDelete OperationType = 3
)

func (t OperationType) String() string {
	switch t {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", byte(t))
	}
}

// Operation is one logged tree mutation. Value is nil for deletes; an empty
// value is logged as "" and decodes back to an empty, non-nil slice.
type Operation struct {
	Type  OperationType `json:"type"`
	Key   uint64        `json:"key"`
	Value []byte        `json:"value"`
}

func (op *Operation) Encode() ([]byte, error) {
	switch op.Type {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return nil, fmt.Errorf("unknown operation type %d", op.Type)
	}
	return json.Marshal(op)
}

func DecodeOperation(data []byte) (*Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	switch op.Type {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return nil, fmt.Errorf("unknown operation type %d", op.Type)
	}
	return &op, nil
}
