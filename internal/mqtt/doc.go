// Package mqtt exports turn events to an MQTT broker so dashboards and
// home-automation systems can follow the assistant live.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. Every event
// published on the in-process bus is forwarded as JSON to
// <prefix>/events/<kind>. A retained status document on <prefix>/status
// carries uptime and today's token totals, and a will message flips
// <prefix>/availability to "offline" on unexpected disconnects.
package mqtt
