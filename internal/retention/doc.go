// Package retention decides which cached entities are still relevant to the
// current user and which can be evicted.
//
// Relevance is computed by walking the social graph from an anchor public
// key: the anchor, the authors it follows up to Policy.FollowDepth hops,
// every event those authors wrote, the events those reference up to
// Policy.ReferenceDepth hops, and the authors of every retained event.
// Anything outside that set is planned for deletion.
//
// The package only plans. Applying a Plan, in one transaction, is the
// caller's job.
package retention
