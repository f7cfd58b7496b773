// Package relay is the event-correlation and deduplication core.
//
// It turns raw feed text into structured slot events (Extract), derives a
// stable content fingerprint (Fingerprint), admits or suppresses events
// under a sliding window (Guard), links exhaustion events back to the most
// recent open announcement per location (Correlator), and mines historical
// admissions to post predictive notices (Predictor).
//
// The persistent store and the messaging channel are collaborators injected
// through the Store and Messenger ports.
package relay
