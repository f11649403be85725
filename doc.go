// Package taxfolio computes the figures of the French tax declaration from
// broker and exchange export files. It is designed to be local-first and
// auditable: every input stays on disk, and every computed value is narrated
// to a processing log that can be checked line by line.
//
// The core functionalities include:
//   - Event Reading: Parsing broker stock exports and exchange crypto exports
//     into a single chronological event model (orders, dividends, interests,
//     splits, cash movements and synthetic resets).
//   - Exchange Rates: Loading daily FX rate tables from CSV files or fetching
//     them from the ECB data portal, to express every amount in the base
//     currency of the declaration.
//   - Gain Methods: Realizing capital gains per sale with three methods in
//     parallel: CUMP (weighted average cost), PEPS (FIFO) and the crypto
//     fractional-capital method, each feeding its own declaration form.
//   - Income Gross-Up: Reconstructing gross dividends and interests from the
//     net payments and the withholding rate of the instrument's country.
//   - Aggregation: Summing the per-ticker outcomes into the global and
//     per-country metric lines the declaration asks for.
//
// This package serves as the foundational logic for the `tfx` command-line
// tool, ensuring that all operations are consistent and based on a single
// source of truth.
package taxfolio
