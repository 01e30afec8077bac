// Package nostr signs and verifies Nostr events (NIP-01) through the
// secp256k1 facade.
//
// The event id is the SHA-256 of the canonical serialization
//
//	[0,"<pubkey>",<created_at>,<kind>,<tags>,"<content>"]
//
// hashed inside the module, so the hash and the signature come from the same
// compiled code.
package nostr
