// Package player streams one data source to many networked sinks.
//
// Each sink gets its own encoder, clock exchange, timestamp cursor and
// emission worker. Sinks that join while others are already playing start
// partway into the data already in flight so they catch up quickly.
package player
