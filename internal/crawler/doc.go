// Package crawler defines the domain types and ports shared by the script
// census pipeline: the processed-result model, the result store and fetcher
// interfaces, and the error sentinels used to classify failures.
package crawler
