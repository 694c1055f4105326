package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutConsistencyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_consistency_errors_total",
		Help: "Payment sessions opened whose order could not be persisted",
	})

	checkoutsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_created_total",
		Help: "Pending orders created with an open payment session",
	})

	orderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Orders moved out of pending, by resulting status",
	}, []string{"status"})

	terminalStatusConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_terminal_status_conflicts_total",
		Help: "Reconciliations where the gateway disagreed with a terminal order",
	})
)
