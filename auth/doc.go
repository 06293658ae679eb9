// Package auth provides the signing-key abstraction adapter sessions use
// to mint bearer tokens for sites that gate their search API behind one.
//
// It deliberately covers only the client side: flightcrawld impersonates
// a browser session against third-party sites, it never validates
// incoming credentials, so there is no authenticator/authorizer surface
// here — just [KeyProvider], so the signing secret can come from a
// static config value today and a rotated per-site store later without
// changing callers.
package auth
