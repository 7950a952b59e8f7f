// Package vpos is a virtual POS gateway for the Turkish banking
// market. It abstracts nine bank payment protocols behind a single
// contract, so an application talks to one API while the service
// handles each bank's wire format, hashing scheme and 3D Secure
// choreography.
//
// # Overview
//
// Every Turkish bank exposes its own virtual POS: EST/Payten XML for
// the ISO banks, Garanti GVPS, QNB PayFor, PayFlex for Ziraat and
// Vakıfbank, Denizbank InterPos, YapıKredi PosNet, Kuveyt Türk SOAP,
// Tosla and the Akbank JSON API. The gateway packages normalize these
// into one request/response model with a shared approval semantic.
//
// # Architecture
//
// The payment flow follows this pattern:
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Your Apps     │◄──►│      vpos       │◄──►│     Banks       │
//	│                 │    │   (Gateway)     │    │  (virtual POS)  │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// A payment starts with a card. The bank directory resolves the card's
// BIN to the issuing bank's profile, the registry produces the right
// gateway adapter, and the checkout service drives the exchange: a
// direct sale completes in one round trip, a 3D Secure sale returns an
// auto-submitting form, parks the transaction, and finishes when the
// bank posts the browser back to /v1/callback/{txnID}.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//
//	    "github.com/mewspay/vpos/checkout"
//	    _ "github.com/mewspay/vpos/gateway/garanti" // Import to register adapter
//	)
//
//	func main() {
//	    svc := checkout.NewService(banks, txns, plans, "https://pay.example.com", false)
//
//	    outcome, err := svc.StartPayment(context.Background(), checkout.PaymentRequest{
//	        OrderID:        "ORD-1001",
//	        Amount:         149.90,
//	        Currency:       "TRY",
//	        Installment:    3,
//	        Use3D:          true,
//	        CardNumber:     "4543600000000006",
//	        CardHolderName: "JANE DOE",
//	        ExpireMonth:    "12",
//	        ExpireYear:     "30",
//	        CVV:            "000",
//	    })
//	    if err != nil {
//	        panic(err)
//	    }
//	    if outcome.Redirect != nil {
//	        // render outcome.Redirect.HTML() to the shopper's browser
//	    }
//	}
//
// # Packages
//
//   - gateway: the adapter contract, registry, bank-facing HTTP client,
//     hashing and formatting helpers, typed errors
//   - gateway/estpos ... gateway/akbank: one subpackage per protocol family
//   - bank: bank profiles, the BIN directory and its LRU cache
//   - installment: installment pricing with campaign windows and
//     category restrictions
//   - transaction: the payment state machine and refund bookkeeping
//   - checkout: the orchestration service tying it all together
//   - handler, router: the HTTP surface
//
// Persistence is SQLite; payment exchanges can additionally be shipped
// to OpenSearch for audit and analytics.
package vpos
