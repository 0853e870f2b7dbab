// Package config handles configuration loading for roomkeeper.
//
// Configuration is a TOML file with ${VAR} environment variable
// expansion, so credentials can stay out of the file itself. The
// deployment environment can also override the monitored room, the
// platform credential, and the fleeting-message window directly through
// MONITORED_CHANNEL_ID, AUTH_TOKEN, and FIXED_DELAY_SECONDS.
//
// Default file locations (in order):
//
//  1. Path from ROOMKEEPER_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/roomkeeper/config.toml
//  3. ~/.config/roomkeeper/config.toml
package config
