// Package scrape drives a full scrape of the rate search server.
//
// The Orchestrator discovers the currencies offered by the search form and
// runs one Pipeline per currency under an outer scheduler. Each Pipeline
// posts the first result page, derives the page count from the page's
// script metadata, fetches the remaining pages under its own bounded
// scheduler, reassembles the rows in server order and hands the finished
// table to an output.Sink.
//
// Nothing is written for a currency whose scrape fails, and a failing
// currency fails the run.
package scrape
