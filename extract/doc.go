// Package extract implements the data collection strategies: plain HTTP
// fetches, headless browser rendering, and JSON API pulls. Every strategy
// archives the raw payload it fetched to the artifact store and returns the
// extracted fields as its outcome.
package extract
