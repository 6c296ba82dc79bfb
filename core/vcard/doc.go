// Package vcard extracts phone numbers from free text and reads/writes the
// minimal vCard 3.0 subset the bot exchanges with users (FN and TEL fields).
package vcard
