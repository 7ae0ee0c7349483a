// Package triage provides the business boundary for Lifeline's emergency
// message triage. It defines the Engine (extraction, urgency scoring and
// resource matching composed into a Verdict), the Service (IDs, persistence,
// alert fan-out and notification), the collaborator interfaces it depends on
// (Recognizer, Registry, Store, Broadcaster, Notifier) and the domain models.
package triage
