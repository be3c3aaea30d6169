// Package access issues the short-lived keys that gate raw content and
// snapshot streaming.
//
// Media elements such as <video> and <img> cannot send custom headers, so
// content URLs carry a ?key= query parameter instead. Keys are scoped to one
// owner and rotate every TTL (two minutes by default); the key being replaced
// keeps validating for one more TTL so URLs handed out just before a rotation
// keep working.
//
// A KeyStore is created once at startup and passed to the HTTP layer.
package access
