/**
 * @description
 * NegRisk position operations on the exchange service: convert, split and
 * merge. These move shares between a user's positions at par without
 * touching the pools, so no price update is published.
 *
 * @dependencies
 * - internal/engine: conversion arithmetic and validation
 */

package services

import (
	"context"

	"github.com/likeli-project/backend/internal/engine"
)

// Convert burns NO shares on the answers selected by indexSet, mints YES
// shares on the complement answers and credits the cash rebate.
func (s *ExchangeService) Convert(ctx context.Context, userID, marketID string, indexSet uint64, amount float64) (*engine.ConvertResult, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s.tickLocked(st, s.now())
	m := st.market
	if err := engine.GuardTradable(m); err != nil {
		return nil, err
	}

	byAnswer := make(map[string]*engine.Position, len(m.Answers))
	for _, a := range m.Answers {
		byAnswer[a.ID] = st.position(userID, a.ID)
	}

	result, err := engine.ConvertPositions(m, byAnswer, indexSet, amount)
	if err != nil {
		return nil, err
	}

	st.prune()
	s.mirrorMarket(m)
	s.mirrorPositions(st)
	return result, nil
}

// Split mints equal YES and NO holdings on one answer for cash.
func (s *ExchangeService) Split(ctx context.Context, userID, marketID, answerID string, amount float64) (*engine.Position, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s.tickLocked(st, s.now())
	m := st.market
	if err := engine.GuardTradable(m); err != nil {
		return nil, err
	}

	pos := st.position(userID, answerID)
	if _, err := engine.SplitPosition(m, answerID, pos, amount); err != nil {
		st.prune()
		return nil, err
	}

	s.mirrorPositions(st)
	cp := *pos
	return &cp, nil
}

// Merge burns equal YES and NO holdings on one answer for cash at par.
func (s *ExchangeService) Merge(ctx context.Context, userID, marketID, answerID string, amount float64) (*engine.Position, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s.tickLocked(st, s.now())
	m := st.market
	if err := engine.GuardTradable(m); err != nil {
		return nil, err
	}

	pos := st.position(userID, answerID)
	if _, err := engine.MergePosition(m, answerID, pos, amount); err != nil {
		st.prune()
		return nil, err
	}
	cp := *pos

	st.prune()
	s.mirrorPositions(st)
	return &cp, nil
}

// RebalanceMarket rescales a dependent market's answers so probabilities
// sum to exactly one.
func (s *ExchangeService) RebalanceMarket(ctx context.Context, marketID string) (*engine.Market, error) {
	st, err := s.state(marketID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	s.tickLocked(st, s.now())
	if err := engine.Rebalance(st.market); err != nil {
		return nil, err
	}
	s.mirrorMarket(st.market)
	return snapshotMarket(st.market), nil
}
