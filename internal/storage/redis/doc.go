// Package redis serves proof documents from Redis. Each secret is stored as a
// plain string key (prefix + secret) whose value is the JSON proof document.
package redis
