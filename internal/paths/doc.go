// Provides platform-appropriate paths for buildplan.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS. The application name "buildplan" is used as the subdirectory
// under each base path.
package paths
