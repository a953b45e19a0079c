/*
Package markov provides a small toolkit for building order-k word transition
tables ("Markov chains") from text and sampling new sentences from them.

Text is split into words and standalone punctuation marks by a Tokenizer,
folded into a Table by Build, and walked by a Generator that draws each next
token with probability proportional to how often it was observed. Tables can
be persisted as JSON files (FileStore) or in a SQLite database holding many
named models (SQLStore).

All randomness flows through a Source, so generation is reproducible when a
seeded source from NewSource is supplied.
*/
package markov
