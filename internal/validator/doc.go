// Package validator runs the second AI pass over BLOCKER and HIGH findings.
//
// Every high-severity finding across all agents goes into one worklist and
// one prompt. The response is read as a series of
// "### VALIDATE: ID - SEV -> SEV" blocks, each optionally followed by a
// **Reason:** paragraph, and each decision (confirmed, downgraded or
// rejected) is applied back onto the agent results. Summaries are recounted
// from scratch afterwards.
//
// The pass never fails a run. A provider error or a response with no
// parsable blocks leaves every finding as it was and reports the worklist as
// implicitly confirmed.
package validator
