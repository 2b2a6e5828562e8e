package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	// ErrInsufficientClients aborts a run: no quorum can be formed.
	ErrInsufficientClients = errors.New("insufficient clients")
	// ErrQuorumNotMet skips a single round.
	ErrQuorumNotMet      = errors.New("quorum not met")
	ErrClientUnreachable = errors.New("client unreachable")
	ErrShapeMismatch     = errors.New("parameter shape mismatch")
	// ErrEmptyPartition permanently excludes the reporting client from the run.
	ErrEmptyPartition   = errors.New("empty data partition")
	ErrEmptyAggregation = errors.New("nothing to aggregate")
	ErrUnknownConfigKey = errors.New("unknown round config key")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrRunInProgress    = errors.New("another run is in progress")
)
