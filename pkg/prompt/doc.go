// Package prompt fills a form from the terminal. Every answer goes through the
// field's rules; a rejected answer is reported and asked again. Fields whose
// conditions do not hold after the earlier answers are skipped.
package prompt
