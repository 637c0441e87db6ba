package model

import (
	"errors"
	"strings"
)

type PurchaseStatus string

const (
	PurchaseStatusInCart                 PurchaseStatus = "IN_CART"
	PurchaseStatusWaitingForConfirmation PurchaseStatus = "WAITING_FOR_CONFIRMATION"
	PurchaseStatusPicking                PurchaseStatus = "PICKING"
	PurchaseStatusShipping               PurchaseStatus = "SHIPPING"
	PurchaseStatusDelivered              PurchaseStatus = "DELIVERED"
	PurchaseStatusCanceled               PurchaseStatus = "CANCELED"
)

// 一覧のフィルタ専用。ステータスではない
const PurchaseStatusAll = "ALL"

var ErrInvalidTransition = errors.New("invalid status transition")

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusInCart,
		PurchaseStatusWaitingForConfirmation,
		PurchaseStatusPicking,
		PurchaseStatusShipping,
		PurchaseStatusDelivered,
		PurchaseStatusCanceled:
		return true
	}
	return false
}

// 配達済み/キャンセル済みは終端
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusDelivered || s == PurchaseStatusCanceled
}

func ParsePurchaseStatus(raw string) (PurchaseStatus, bool) {
	s := PurchaseStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}

type PurchaseEvent string

const (
	EventCheckout PurchaseEvent = "CHECKOUT"
	EventConfirm  PurchaseEvent = "CONFIRM"
	EventPickUp   PurchaseEvent = "PICK_UP"
	EventDeliver  PurchaseEvent = "DELIVER"
	EventCancel   PurchaseEvent = "CANCEL"
)

type transitionKey struct {
	from PurchaseStatus
	ev   PurchaseEvent
}

// ライフサイクルの遷移表。ここにない組み合わせは全部不正
var transitions = map[transitionKey]PurchaseStatus{
	{PurchaseStatusInCart, EventCheckout}:                PurchaseStatusWaitingForConfirmation,
	{PurchaseStatusWaitingForConfirmation, EventConfirm}: PurchaseStatusPicking,
	{PurchaseStatusPicking, EventPickUp}:                 PurchaseStatusShipping,
	{PurchaseStatusShipping, EventDeliver}:               PurchaseStatusDelivered,
	{PurchaseStatusShipping, EventCancel}:                PurchaseStatusCanceled,
}

func NextStatus(cur PurchaseStatus, ev PurchaseEvent) (PurchaseStatus, error) {
	next, ok := transitions[transitionKey{from: cur, ev: ev}]
	if !ok {
		return cur, ErrInvalidTransition
	}
	return next, nil
}

// 配送員が指定できる最終ステータス
func ResolveEvent(requested PurchaseStatus) (PurchaseEvent, bool) {
	switch requested {
	case PurchaseStatusDelivered:
		return EventDeliver, true
	case PurchaseStatusCanceled:
		return EventCancel, true
	}
	return "", false
}
