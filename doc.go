// Package mensago is a Go client library for the Mensago secure-messaging
// platform.
//
// The SDK gives an application everything it needs to participate as an
// endpoint: it manages the user's cryptographic identity, proves that
// identity to a home server, constructs and verifies keycards, and packages
// message payloads into sealed envelopes for delivery.
//
// You can load the local profiles and log into the active identity's home
// server with the below example:
//
//	// Create a client and load the profile store
//	client := NewClient("")
//	err := client.Load()
//	if err != nil {
//	  panic(fmt.Sprintf("Failed to load profiles: %v", err))
//	}
//
//	// Connect to the identity's home server and authenticate
//	err = client.Login(orgEncryptionKey)
//	if err != nil {
//	  panic(fmt.Sprintf("Failed to log in: %v", err))
//	}
//	defer client.Disconnect()
//
//	// Pull down any changes made since the last session
//	profile, _ := client.ActiveProfile()
//	err = DownloadUpdates(client.Conn(), profile)
//
// The lower-level pieces live in the subpackages: crypto for keys, hashes,
// and passwords; keycard for the identity ledger; types for addresses and
// server paths; profile for local storage; contact for the contact
// dot-notation; and kcresolver for service discovery.
package mensago
